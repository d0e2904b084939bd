package collector

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"agrohub/internal/catalog"
)

const (
	noticiasAgricolasBase = "https://www.noticiasagricolas.com.br"
	noticiasAgricolasName = "Notícias Agrícolas"
)

// naPageRules locate article content on noticiasagricolas.com.br pages. The
// portal prints its publish time in the .datas block; a page-wide date scan
// would pick up sidebar dates, so it stays off and the listing time is the
// fallback instead.
var naPageRules = pageRules{
	bodySelectors:  []string{".materia", ".conteudo", ".news-body"},
	imageSelectors: []string{".materia img"},
	dateSelectors:  []string{".datas", ".meta"},
	skipMarkers:    []string{"Logotipo Notícias Agrícolas"},
	minParagraph:   25,
	goodParagraph:  50,
	maxParagraphs:  5,
}

// listingDateRe matches the dd/MM/yyyy day headings that group the listing.
var listingDateRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// NoticiasAgricolasSource scrapes one topic listing of the portal. Listings
// group entries under day headings; each entry links to a detail page that
// carries the summary, hero image and exact publish time.
type NoticiasAgricolasSource struct {
	topic   catalog.Topic
	client  *Client
	baseURL string
	opts    SourceOptions
}

func NewNoticiasAgricolasSource(topic catalog.Topic, client *Client, opts SourceOptions) *NoticiasAgricolasSource {
	return &NoticiasAgricolasSource{
		topic:   topic,
		client:  client,
		baseURL: noticiasAgricolasBase,
		opts:    opts.withDefaults(),
	}
}

func (s *NoticiasAgricolasSource) Name() string {
	return "noticiasagricolas/" + s.topic.ID
}

func (s *NoticiasAgricolasSource) Fetch(ctx context.Context, now time.Time) ([]Article, error) {
	listingURL := fmt.Sprintf("%s/noticias/%s/", s.baseURL, s.topic.Slug)
	candidates, err := s.parseListing(ctx, listingURL)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-s.opts.Window)
	var fresh []listingEntry
	for _, cand := range candidates {
		if cand.ListedAt.Before(cutoff) {
			continue
		}
		fresh = append(fresh, cand)
	}
	// listing order is newest first; twice the cap leaves room for
	// keyword rejects without dereferencing the whole listing
	if budget := s.opts.MaxArticles * 2; len(fresh) > budget {
		fresh = fresh[:budget]
	}

	results, failed := fetchAll(ctx, fresh, s.opts.Concurrency, s.Name(), s.fetchDetail)

	var out []Article
	for _, art := range results {
		if art == nil {
			continue
		}
		if art.PublishedAt.Before(cutoff) {
			continue
		}
		if !s.topic.Matches(art.Title + " " + art.Summary) {
			continue
		}
		out = append(out, *art)
		if len(out) >= s.opts.MaxArticles {
			break
		}
	}

	if len(out) == 0 && len(fresh) > 0 && failed == len(fresh) {
		return nil, fmt.Errorf("noticiasagricolas %s: all %d detail pages failed", s.topic.ID, len(fresh))
	}
	return out, nil
}

// parseListing walks the day headings of a listing page and collects the
// entries beneath each, newest first.
func (s *NoticiasAgricolasSource) parseListing(ctx context.Context, listingURL string) ([]listingEntry, error) {
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

	c.OnHTML("#content", func(e *colly.HTMLElement) {
		e.DOM.Find("h3").Each(func(_ int, heading *goquery.Selection) {
			dateText := strings.TrimSpace(heading.Text())
			if !listingDateRe.MatchString(dateText) {
				return
			}
			list := heading.NextAllFiltered("ul").First()
			list.Find("li.horizontal").Each(func(_ int, item *goquery.Selection) {
				href, ok := item.Find("a[href]").First().Attr("href")
				title := sanitizeText(item.Find("h2").First().Text())
				if !ok || strings.TrimSpace(href) == "" || title == "" {
					return
				}
				hour := sanitizeText(item.Find(".hora").First().Text())
				entries = append(entries, listingEntry{
					URL:      e.Request.AbsoluteURL(strings.TrimSpace(href)),
					Title:    title,
					ListedAt: combineListingDate(dateText, hour, s.opts.Location),
				})
			})
		})
	})

	if err := c.Visit(listingURL); err != nil && fetchErr == nil && len(entries) == 0 {
		fetchErr = &FetchError{Kind: FetchUnreachable, URL: listingURL, Err: err}
	}
	if len(entries) == 0 && fetchErr != nil {
		return nil, fetchErr
	}
	return entries, nil
}

func (s *NoticiasAgricolasSource) fetchDetail(ctx context.Context, cand listingEntry) (*Article, error) {
	doc, raw, err := s.client.GetDocument(ctx, cand.URL)
	if err != nil {
		return nil, err
	}

	page, err := extractArticlePage(doc, cand.URL, naPageRules, s.opts.Location)
	if err != nil {
		return nil, err
	}
	fillWithReadability(&page, raw, cand.URL)

	publishedAt := page.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = cand.ListedAt
	}
	if publishedAt.IsZero() {
		return nil, &ExtractError{Kind: ExtractMissingField, URL: cand.URL, Field: "published_at"}
	}

	return &Article{
		Title:       page.Title,
		URL:         cand.URL,
		Summary:     page.Summary,
		ImageURL:    page.ImageURL,
		PublishedAt: publishedAt,
		Source:      noticiasAgricolasName,
		TopicID:     s.topic.ID,
	}, nil
}
