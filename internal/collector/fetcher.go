package collector

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Article is the normalized record every source produces. The URL is the
// canonical identity used for cross-source deduplication; Summary and
// ImageURL may be empty when a page did not yield them.
type Article struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	ImageURL    string    `json:"image_url"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
	TopicID     string    `json:"topic_id"`
}

// Quote is one entry of the quote board: a currency or commodity indicator
// with its display value and day-over-day change, both kept as the source
// prints them.
type Quote struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Value  string `json:"value"`
	Change string `json:"change"`
	Unit   string `json:"unit"`
	Source string `json:"source"`
}

// Source is one scrape target: a topic listing, a feed, a portal. Fetch
// returns fully extracted articles; now anchors the recency cutoff so every
// source in a run shares the same clock reading.
type Source interface {
	Name() string
	Fetch(ctx context.Context, now time.Time) ([]Article, error)
}

// SourceOptions bound the work a source does per run.
type SourceOptions struct {
	MaxArticles int            // cap on articles returned per source
	Concurrency int            // simultaneous detail-page fetches
	Window      time.Duration  // listing entries older than this are not dereferenced
	Location    *time.Location // timezone the portals print dates in
}

func (o SourceOptions) withDefaults() SourceOptions {
	if o.MaxArticles <= 0 {
		o.MaxArticles = 12
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Window <= 0 {
		o.Window = 7 * 24 * time.Hour
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// listingEntry is one anchor scraped off a listing page, carrying whatever
// timestamp the listing itself printed (zero when it printed none).
type listingEntry struct {
	URL      string
	Title    string
	ListedAt time.Time
}

// fetchAll dereferences listing candidates under a bounded semaphore so no
// single host sees more than concurrency simultaneous requests. Results are
// slot-addressed to keep listing order; the failure count lets callers tell
// "every page broke" from "nothing qualified".
func fetchAll(ctx context.Context, cands []listingEntry, concurrency int, name string, fetch func(context.Context, listingEntry) (*Article, error)) ([]*Article, int) {
	results := make([]*Article, len(cands))
	failed := 0

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	for i, cand := range cands {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cand listingEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			art, err := fetch(ctx, cand)
			if err != nil {
				log.Printf("%s: %v", name, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			results[i] = art
		}(i, cand)
	}
	wg.Wait()

	return results, failed
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// sanitizeText collapses whitespace runs into single spaces and trims.
func sanitizeText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
