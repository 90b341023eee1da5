// Package news fetches crypto market headlines from configured RSS feeds.
// It is a sidebar feature: failures of individual sources are skipped and an
// empty result is acceptable.
package news

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/fteduche/cryptopluse/pkg/models"
)

// DefaultSources lists the crypto news RSS feeds used when none are
// configured.
var DefaultSources = []string{
	"https://cointelegraph.com/rss",
	"https://www.coindesk.com/arc/outboundfeeds/rss/",
}

// Service fetches and caches market news.
type Service struct {
	sources []string
	parser  *gofeed.Parser
	ttl     time.Duration

	mu        sync.Mutex
	cached    []models.NewsArticle
	expiresAt time.Time
}

// New creates a news service. Empty sources fall back to DefaultSources;
// a non-positive ttl disables caching.
func New(sources []string, ttl time.Duration) *Service {
	if len(sources) == 0 {
		sources = DefaultSources
	}
	return &Service{
		sources: sources,
		parser:  gofeed.NewParser(),
		ttl:     ttl,
	}
}

// Latest returns up to limit recent articles across all sources, newest
// first. Sources that fail to parse are skipped.
func (s *Service) Latest(ctx context.Context, limit int) ([]models.NewsArticle, error) {
	s.mu.Lock()
	if s.ttl > 0 && time.Now().Before(s.expiresAt) {
		cached := s.cached
		s.mu.Unlock()
		return clip(cached, limit), nil
	}
	s.mu.Unlock()

	var articles []models.NewsArticle
	for _, src := range s.sources {
		feed, err := s.parser.ParseURLWithContext(src, ctx)
		if err != nil {
			// Non-critical: skip failed sources.
			continue
		}
		name := feed.Title
		for _, item := range feed.Items {
			a := models.NewsArticle{
				Title:   item.Title,
				Link:    item.Link,
				Source:  name,
				Summary: item.Description,
			}
			if item.PublishedParsed != nil {
				a.Published = *item.PublishedParsed
			}
			articles = append(articles, a)
		}
	}

	sort.Slice(articles, func(i, j int) bool {
		return articles[i].Published.After(articles[j].Published)
	})

	s.mu.Lock()
	s.cached = articles
	s.expiresAt = time.Now().Add(s.ttl)
	s.mu.Unlock()

	return clip(articles, limit), nil
}

func clip(articles []models.NewsArticle, limit int) []models.NewsArticle {
	if limit > 0 && len(articles) > limit {
		return articles[:limit]
	}
	return articles
}
