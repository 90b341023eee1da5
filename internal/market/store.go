// Package market holds the in-memory market snapshot and derives the
// user-visible view from it. This is the heart of the dashboard: the Store
// owns the latest asset list, and Reconcile computes the filtered, paginated,
// delta-annotated subset the render layer paints.
package market

import (
	"math"
	"sync"
	"time"

	"github.com/fteduche/cryptopluse/pkg/models"
)

// Store holds the latest full asset snapshot and global stats. Replacement is
// atomic: readers observe either the old snapshot or the new one, never a mix.
// The outgoing snapshot's price-by-id index is retained for exactly one round
// of delta computation and discarded on the next Replace.
type Store struct {
	mu          sync.RWMutex
	assets      []models.Asset
	global      models.GlobalStats
	priorPrices map[string]float64
	lastUpdated time.Time
}

// NewStore creates an empty snapshot store.
func NewStore() *Store {
	return &Store{}
}

// Replace swaps in a new snapshot, capturing the outgoing snapshot's prices
// first. Assets absent from the new snapshot are dropped; newly present
// assets have no prior price and classify as unchanged.
func (s *Store) Replace(assets []models.Asset, global models.GlobalStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := make(map[string]float64, len(s.assets))
	for _, a := range s.assets {
		if !math.IsNaN(a.PriceUSD) {
			prior[a.ID] = a.PriceUSD
		}
	}

	s.priorPrices = prior
	s.assets = assets
	s.global = global
	s.lastUpdated = time.Now()
}

// Assets returns a copy of the current snapshot in provider rank order.
func (s *Store) Assets() []models.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Asset, len(s.assets))
	copy(out, s.assets)
	return out
}

// AssetByID looks up a single asset in the current snapshot.
func (s *Store) AssetByID(id string) (models.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.assets {
		if a.ID == id {
			return a, true
		}
	}
	return models.Asset{}, false
}

// Global returns the latest aggregate market figures.
func (s *Store) Global() models.GlobalStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global
}

// PriorPrices returns the price-by-id index captured from the snapshot that
// the current one replaced. Empty before the second Replace.
func (s *Store) PriorPrices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.priorPrices))
	for k, v := range s.priorPrices {
		out[k] = v
	}
	return out
}

// LastUpdated returns the time of the most recent Replace, zero before the
// first successful fetch.
func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Len returns the number of assets in the current snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}
