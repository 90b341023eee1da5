package market

import (
	"math"
	"strings"

	"github.com/fteduche/cryptopluse/pkg/models"
)

// Reconcile derives the visible view from a full snapshot and the current
// view state: filter by the search query, clamp the page into range,
// slice out the page, and classify each visible asset's price movement
// against the prior snapshot's price index.
//
// Reconcile is pure and deterministic; it never fails. An empty view with
// TotalFiltered == 0 is the valid "no results" state, not an error.
func Reconcile(assets []models.Asset, vs models.ViewState, prior map[string]float64) models.DerivedView {
	perPage := vs.ItemsPerPage
	if perPage < 1 {
		perPage = 1
	}

	filtered := assets
	if vs.SearchQuery != "" {
		filtered = make([]models.Asset, 0, len(assets))
		for _, a := range assets {
			if Matches(a, vs.SearchQuery) {
				filtered = append(filtered, a)
			}
		}
	}

	totalPages := (len(filtered) + perPage - 1) / perPage

	page := vs.CurrentPage
	if page < 1 {
		page = 1
	}
	// A filter that narrows results must not strand the user on an empty page.
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	visible := make([]models.VisibleAsset, 0, end-start)
	for _, a := range filtered[start:end] {
		visible = append(visible, models.VisibleAsset{
			Asset: a,
			Delta: classify(a.PriceUSD, prior, a.ID),
		})
	}

	return models.DerivedView{
		Visible:       visible,
		TotalFiltered: len(filtered),
		TotalPages:    totalPages,
		Page:          page,
		Query:         vs.SearchQuery,
		Mode:          vs.Mode,
	}
}

// Matches reports whether the asset's name or symbol contains the query as a
// case-folded substring. The empty query matches everything.
func Matches(a models.Asset, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(a.Name), q) ||
		strings.Contains(strings.ToLower(a.Symbol), q)
}

// classify compares the current price against the prior snapshot's price for
// the same id: strictly greater is up, strictly less is down, equal or no
// prior value (or an unparseable price on either side) is unchanged.
func classify(price float64, prior map[string]float64, id string) models.PriceDelta {
	old, ok := prior[id]
	if !ok || math.IsNaN(price) || math.IsNaN(old) {
		return models.DeltaUnchanged
	}
	switch {
	case price > old:
		return models.DeltaUp
	case price < old:
		return models.DeltaDown
	default:
		return models.DeltaUnchanged
	}
}
