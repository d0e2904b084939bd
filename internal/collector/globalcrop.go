package collector

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/mmcdole/gofeed"

	"agrohub/internal/catalog"
)

const (
	globalCropName   = "Global Crop Protection"
	globalCropDomain = "globalcropprotection.com"
)

var globalCropFeeds = []string{
	"https://globalcropprotection.com/feed/",
	"https://globalcropprotection.com/category/news/feed/",
}

var globalCropListings = []string{
	"https://globalcropprotection.com/news/",
	"https://globalcropprotection.com/",
}

// gcpPageRules work on a WordPress theme without stable class names, so the
// containers are generic and the date may sit anywhere in the body text.
var gcpPageRules = pageRules{
	bodySelectors:  []string{"article", "main", "body"},
	imageSelectors: []string{"article img"},
	goodParagraph:  40,
	maxParagraphs:  5,
	bodyDateScan:   true,
}

// gcpListingSelectors collect candidate anchors on the fallback pages.
var gcpListingSelectors = []string{"article a[href]", ".post a[href]", "h2 a[href]", "h3 a[href]"}

// gcpExcludedPaths mark archive links that are not articles.
var gcpExcludedPaths = []string{"/author/", "/tag/", "/category/", "/page/"}

const gcpMaxCandidates = 40

// GlobalCropSource reads the international crop-protection feeds. The RSS is
// the stable path; scraping the listing pages is the fallback when every
// feed is down. Articles are topic-classified and relevance-filtered since
// the feed covers more ground than the dashboard does.
type GlobalCropSource struct {
	cat      *catalog.Catalog
	client   *Client
	feeds    []string
	listings []string
	domain   string
	opts     SourceOptions
}

func NewGlobalCropSource(cat *catalog.Catalog, client *Client, opts SourceOptions) *GlobalCropSource {
	return &GlobalCropSource{
		cat:      cat,
		client:   client,
		feeds:    globalCropFeeds,
		listings: globalCropListings,
		domain:   globalCropDomain,
		opts:     opts.withDefaults(),
	}
}

func (s *GlobalCropSource) Name() string {
	return "globalcrop"
}

func (s *GlobalCropSource) Fetch(ctx context.Context, now time.Time) ([]Article, error) {
	cutoff := now.Add(-s.opts.Window)

	out, feedsErr := s.fromFeeds(ctx, cutoff)
	if len(out) > 0 {
		return out, nil
	}

	listed, listErr := s.fromListings(ctx, cutoff)
	if len(listed) > 0 {
		return listed, nil
	}

	if feedsErr != nil && listErr != nil {
		return nil, fmt.Errorf("globalcrop: feeds and listings both failed: %v; %w", feedsErr, listErr)
	}
	return nil, nil
}

// fromFeeds parses the RSS feeds. The error is non-nil only when every feed
// failed; a feed that parsed but had nothing fresh is not a failure.
func (s *GlobalCropSource) fromFeeds(ctx context.Context, cutoff time.Time) ([]Article, error) {
	parser := gofeed.NewParser()
	parser.Client = s.client.HTTPClient()
	parser.UserAgent = userAgent

	var out []Article
	seen := make(map[string]struct{})
	failed := 0
	var lastErr error

	for _, feedURL := range s.feeds {
		feed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			log.Printf("globalcrop: feed %s: %v", feedURL, err)
			failed++
			lastErr = err
			continue
		}
		for _, item := range feed.Items {
			art, ok := s.articleFromItem(ctx, item, cutoff)
			if !ok {
				continue
			}
			if _, dup := seen[art.URL]; dup {
				continue
			}
			seen[art.URL] = struct{}{}
			out = append(out, art)
			if len(out) >= s.opts.MaxArticles {
				return out, nil
			}
		}
	}

	if failed == len(s.feeds) {
		return out, fmt.Errorf("globalcrop: all %d feeds failed: %w", failed, lastErr)
	}
	return out, nil
}

func (s *GlobalCropSource) articleFromItem(ctx context.Context, item *gofeed.Item, cutoff time.Time) (Article, bool) {
	link := strings.TrimSpace(item.Link)
	title := sanitizeText(item.Title)
	if link == "" || title == "" {
		return Article{}, false
	}

	published := feedTime(item)
	if published.IsZero() || published.Before(cutoff) {
		return Article{}, false
	}

	summary := sanitizeText(stripHTML(item.Description))
	if !s.cat.Relevant(title + " " + summary) {
		return Article{}, false
	}

	img := feedImage(item)
	if img == "" {
		img = s.ogImage(ctx, link)
	}

	return Article{
		Title:       title,
		URL:         link,
		Summary:     summary,
		ImageURL:    img,
		PublishedAt: published,
		Source:      globalCropName,
		TopicID:     s.cat.Classify(title + " " + summary),
	}, true
}

// fromListings is the no-RSS path: scrape candidate anchors, then pull each
// article page the same way the Brazilian portals are handled.
func (s *GlobalCropSource) fromListings(ctx context.Context, cutoff time.Time) ([]Article, error) {
	candidates, err := s.parseListings(ctx)
	if err != nil {
		return nil, err
	}

	results, failed := fetchAll(ctx, candidates, s.opts.Concurrency, s.Name(), s.fetchDetail)

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
		return nil, fmt.Errorf("globalcrop: all %d detail pages failed", len(candidates))
	}
	return out, nil
}

func (s *GlobalCropSource) parseListings(ctx context.Context) ([]listingEntry, error) {
	var entries []listingEntry
	seen := make(map[string]struct{})
	failed := 0
	var lastErr error

	for _, listingURL := range s.listings {
		got, err := s.collectListing(ctx, listingURL, seen, gcpMaxCandidates-len(entries))
		if err != nil {
			log.Printf("globalcrop: listing %s: %v", listingURL, err)
			failed++
			lastErr = err
			continue
		}
		entries = append(entries, got...)
		if len(entries) >= gcpMaxCandidates {
			break
		}
	}

	if failed == len(s.listings) && len(entries) == 0 {
		return nil, fmt.Errorf("globalcrop: all listings failed: %w", lastErr)
	}
	return entries, nil
}

func (s *GlobalCropSource) collectListing(ctx context.Context, listingURL string, seen map[string]struct{}, budget int) ([]listingEntry, error) {
	if budget <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Kind: FetchTimeout, URL: listingURL, Err: err}
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

	c.OnHTML("html", func(e *colly.HTMLElement) {
		for _, sel := range gcpListingSelectors {
			e.DOM.Find(sel).Each(func(_ int, a *goquery.Selection) {
				if len(entries) >= budget {
					return
				}
				href, _ := a.Attr("href")
				href = strings.TrimSpace(href)
				if href == "" {
					return
				}
				full := e.Request.AbsoluteURL(href)
				if !strings.Contains(full, s.domain) {
					return
				}
				if hasMarker(strings.ToLower(full), gcpExcludedPaths) {
					return
				}
				if _, dup := seen[full]; dup {
					return
				}
				title := sanitizeText(a.Text())
				if title == "" {
					return
				}
				seen[full] = struct{}{}
				entries = append(entries, listingEntry{URL: full, Title: title})
			})
		}
	})

	err := c.Visit(listingURL)
	if len(entries) == 0 {
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, &FetchError{Kind: FetchUnreachable, URL: listingURL, Err: err}
		}
	}
	return entries, nil
}

func (s *GlobalCropSource) fetchDetail(ctx context.Context, cand listingEntry) (*Article, error) {
	doc, raw, err := s.client.GetDocument(ctx, cand.URL)
	if err != nil {
		return nil, err
	}

	page, err := extractArticlePage(doc, cand.URL, gcpPageRules, s.opts.Location)
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
		Source:      globalCropName,
		TopicID:     s.cat.Classify(page.Title + " " + page.Summary),
	}, nil
}

// ogImage pulls just the og:image off an article page, for feed items whose
// RSS carried no media.
func (s *GlobalCropSource) ogImage(ctx context.Context, pageURL string) string {
	doc, _, err := s.client.GetDocument(ctx, pageURL)
	if err != nil {
		return ""
	}
	og, _ := doc.Find(`meta[property="og:image"]`).Attr("content")
	return strings.TrimSpace(og)
}

// feedTime picks the best timestamp a feed item offers.
func feedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

// feedImage tries the enclosure, then the media extension, then the item
// image.
func feedImage(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	if media, ok := item.Extensions["media"]; ok {
		for _, content := range media["content"] {
			if u := content.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	return ""
}

// stripHTML drops tags from feed descriptions, which arrive as HTML.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return html.UnescapeString(b.String())
}
