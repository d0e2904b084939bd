package collector

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"agrohub/internal/catalog"
)

const (
	agrolinkName   = "Agrolink"
	agrolinkDomain = "agrolink.com.br"
)

var agrolinkBases = []string{
	"https://www.agrolink.com.br/",
	"https://www.agrolink.com.br/noticias/",
}

// agrolinkDisallowed filters out the portal's weather, market-board and
// multimedia sections, which share the /noticia path with real articles.
var agrolinkDisallowed = []string{
	"previsao", "previsão", "tempo", "clima", "meteorolog",
	"cotacao", "cotacoes", "cotações", "podcast",
	"video", "vídeo", "galeria", "classificado", "classificados",
}

var agrolinkPageRules = pageRules{
	bodySelectors:  []string{".content", ".conteudo", ".materia", "article", "main", "body"},
	imageSelectors: []string{"article img", ".post img", ".conteudo img", ".content img"},
	goodParagraph:  40,
	maxParagraphs:  8,
	bodyDateScan:   true,
}

const agrolinkMaxCandidates = 60

// AgrolinkSource scrapes the general agribusiness portal. The listing pages
// carry no timestamps, so every candidate needs a detail fetch before the
// retention window can be applied.
type AgrolinkSource struct {
	cat    *catalog.Catalog
	client *Client
	bases  []string
	domain string
	opts   SourceOptions
}

func NewAgrolinkSource(cat *catalog.Catalog, client *Client, opts SourceOptions) *AgrolinkSource {
	return &AgrolinkSource{
		cat:    cat,
		client: client,
		bases:  agrolinkBases,
		domain: agrolinkDomain,
		opts:   opts.withDefaults(),
	}
}

func (s *AgrolinkSource) Name() string {
	return "agrolink"
}

func (s *AgrolinkSource) Fetch(ctx context.Context, now time.Time) ([]Article, error) {
	candidates, err := s.parseListings(ctx)
	if err != nil {
		return nil, err
	}
	if budget := s.opts.MaxArticles * 2; len(candidates) > budget {
		candidates = candidates[:budget]
	}

	results, failed := fetchAll(ctx, candidates, s.opts.Concurrency, s.Name(), s.fetchDetail)

	cutoff := now.Add(-s.opts.Window)
	var out []Article
	for _, art := range results {
		if art == nil {
			continue
		}
		if art.PublishedAt.Before(cutoff) {
			continue
		}
		if !s.cat.Relevant(art.Title + " " + art.Summary) {
			continue
		}
		out = append(out, *art)
		if len(out) >= s.opts.MaxArticles {
			break
		}
	}

	if len(out) == 0 && len(candidates) > 0 && failed == len(candidates) {
		return nil, fmt.Errorf("agrolink: all %d detail pages failed", len(candidates))
	}
	return out, nil
}

func (s *AgrolinkSource) parseListings(ctx context.Context) ([]listingEntry, error) {
	var entries []listingEntry
	seen := make(map[string]struct{})
	failed := 0
	var lastErr error

	for _, baseURL := range s.bases {
		got, err := s.collectListing(ctx, baseURL, seen, agrolinkMaxCandidates-len(entries))
		if err != nil {
			log.Printf("agrolink: listing %s: %v", baseURL, err)
			failed++
			lastErr = err
			continue
		}
		entries = append(entries, got...)
		if len(entries) >= agrolinkMaxCandidates {
			break
		}
	}

	if failed == len(s.bases) && len(entries) == 0 {
		return nil, fmt.Errorf("agrolink: all listings failed: %w", lastErr)
	}
	return entries, nil
}

func (s *AgrolinkSource) collectListing(ctx context.Context, baseURL string, seen map[string]struct{}, budget int) ([]listingEntry, error) {
	if budget <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Kind: FetchTimeout, URL: baseURL, Err: err}
	}

	c := colly.NewCollector(colly.UserAgent(userAgent))
	c.SetRequestTimeout(s.client.Timeout())

	var entries []listingEntry
	var fetchErr error

	c.OnError(func(r *colly.Response, err error) {
		if retryTransient(r) {
			return
		}
		fetchErr = collyFetchError(r, err)
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if len(entries) >= budget {
			return
		}
		full := e.Request.AbsoluteURL(strings.TrimSpace(e.Attr("href")))
		if full == "" || !strings.Contains(full, s.domain) {
			return
		}
		low := strings.ToLower(full)
		if !strings.Contains(low, "/noticia") {
			return
		}
		if _, dup := seen[full]; dup {
			return
		}
		title := sanitizeText(e.Text)
		if title == "" {
			title = slugTitle(full)
		}
		if title == "" {
			return
		}
		if hasMarker(low, agrolinkDisallowed) || hasMarker(strings.ToLower(title), agrolinkDisallowed) {
			return
		}
		seen[full] = struct{}{}
		entries = append(entries, listingEntry{URL: full, Title: title})
	})

	err := c.Visit(baseURL)
	if len(entries) == 0 {
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, &FetchError{Kind: FetchUnreachable, URL: baseURL, Err: err}
		}
	}
	return entries, nil
}

func (s *AgrolinkSource) fetchDetail(ctx context.Context, cand listingEntry) (*Article, error) {
	doc, raw, err := s.client.GetDocument(ctx, cand.URL)
	if err != nil {
		return nil, err
	}

	page, err := extractArticlePage(doc, cand.URL, agrolinkPageRules, s.opts.Location)
	if err != nil {
		return nil, err
	}
	fillWithReadability(&page, raw, cand.URL)

	if page.PublishedAt.IsZero() {
		return nil, &ExtractError{Kind: ExtractMissingField, URL: cand.URL, Field: "published_at"}
	}

	return &Article{
		Title:       page.Title,
		URL:         cand.URL,
		Summary:     page.Summary,
		ImageURL:    page.ImageURL,
		PublishedAt: page.PublishedAt,
		Source:      agrolinkName,
		TopicID:     s.cat.Classify(page.Title + " " + page.Summary),
	}, nil
}

// slugTitle recovers a readable title from the URL slug when the anchor text
// is an image or empty.
func slugTitle(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return ""
	}
	slug := trimmed[idx+1:]
	if i := strings.IndexAny(slug, "?#"); i >= 0 {
		slug = slug[:i]
	}
	return sanitizeText(strings.ReplaceAll(slug, "-", " "))
}
