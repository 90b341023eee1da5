package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func feedXML(title string, items ...string) string {
	body := ""
	for i, it := range items {
		body += fmt.Sprintf(`<item><title>%s</title><link>https://example.com/%d</link>
<pubDate>Mon, 0%d Jan 2024 00:00:00 GMT</pubDate></item>`, it, i, i+1)
	}
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>` +
		title + `</title>` + body + `</channel></rss>`
}

func TestLatestSortsNewestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML("Test Feed", "older", "middle", "newest"))
	}))
	defer srv.Close()

	s := New([]string{srv.URL}, 0)
	articles, err := s.Latest(context.Background(), 10)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("len = %d, want 3", len(articles))
	}
	if articles[0].Title != "newest" || articles[2].Title != "older" {
		t.Fatalf("order = %q..%q, want newest first", articles[0].Title, articles[2].Title)
	}
	if articles[0].Source != "Test Feed" {
		t.Fatalf("source = %q, want feed title", articles[0].Source)
	}
}

func TestLatestRespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML("Feed", "a", "b", "c"))
	}))
	defer srv.Close()

	articles, err := New([]string{srv.URL}, 0).Latest(context.Background(), 2)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("len = %d, want 2", len(articles))
	}
}

func TestFailedSourceIsSkipped(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML("Good", "works"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer bad.Close()

	articles, err := New([]string{bad.URL, good.URL}, 0).Latest(context.Background(), 10)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(articles) != 1 || articles[0].Title != "works" {
		t.Fatalf("articles = %+v, want the good source only", articles)
	}
}

func TestCacheAvoidsRefetchWithinTTL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, feedXML("Feed", "item"))
	}))
	defer srv.Close()

	s := New([]string{srv.URL}, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := s.Latest(context.Background(), 10); err != nil {
			t.Fatalf("Latest #%d: %v", i, err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("source fetched %d times, want 1 within the TTL", n)
	}
}
