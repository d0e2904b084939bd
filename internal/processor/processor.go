package processor

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"agrohub/internal/collector"
)

// Snapshot is one fully aggregated result set: the merged, deduplicated,
// windowed article list plus the names of sources that contributed nothing
// to it this run.
type Snapshot struct {
	Articles    []collector.Article
	GeneratedAt time.Time
	Degraded    []string
}

// Processor turns the raw multi-source merge into the list the dashboard
// serves: duplicates collapsed, stale articles dropped, newest first.
type Processor struct {
	retention time.Duration
}

func New(retentionDays int) *Processor {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &Processor{retention: time.Duration(retentionDays) * 24 * time.Hour}
}

// Build processes a merged article list against the retention window anchored
// at now. The boundary is inclusive: an article exactly retention old stays.
func (p *Processor) Build(articles []collector.Article, now time.Time) []collector.Article {
	out := Dedupe(articles)

	cutoff := now.Add(-p.retention)
	kept := out[:0]
	for _, art := range out {
		if art.PublishedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, art)
	}

	// stable so that equal timestamps keep their merge order
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].PublishedAt.After(kept[j].PublishedAt)
	})
	return kept
}

// Dedupe collapses articles sharing a canonical identity. The first
// occurrence holds its position; a later duplicate takes its place only when
// it fills a summary or image the first one was missing.
func Dedupe(articles []collector.Article) []collector.Article {
	out := make([]collector.Article, 0, len(articles))
	index := make(map[string]int, len(articles))

	for _, art := range articles {
		key := dedupeKey(art)
		at, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, art)
			continue
		}
		kept := out[at]
		if (kept.Summary == "" && art.Summary != "") || (kept.ImageURL == "" && art.ImageURL != "") {
			out[at] = art
		}
	}
	return out
}

func dedupeKey(art collector.Article) string {
	if key := canonicalURL(art.URL); key != "" {
		return key
	}
	return strings.ToLower(art.Title) + "|" + strings.ToLower(art.Source)
}

// canonicalURL normalizes a URL to its article identity: scheme and host
// lowercased, query and fragment dropped, trailing slash trimmed. Tracking
// params and share fragments must not split one article into two.
func canonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}
