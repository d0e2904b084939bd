package collector

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ExtractKind classifies extraction failures.
type ExtractKind int

const (
	ExtractUnparseable ExtractKind = iota
	ExtractMissingField
)

func (k ExtractKind) String() string {
	if k == ExtractMissingField {
		return "missing_required_field"
	}
	return "unparseable"
}

// ExtractError reports a page whose article content could not be used.
type ExtractError struct {
	Kind  ExtractKind
	URL   string
	Field string
}

func (e *ExtractError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extract %s: %s %s", e.URL, e.Kind, e.Field)
	}
	return fmt.Sprintf("extract %s: %s", e.URL, e.Kind)
}

// pageRules parametrize detail-page extraction per portal.
type pageRules struct {
	bodySelectors  []string // candidate article containers, tried in order
	imageSelectors []string // img lookups when og:image is absent
	dateSelectors  []string // blocks that carry the publish date
	skipMarkers    []string // paragraph substrings that flag boilerplate
	minParagraph   int      // paragraphs must exceed this many runes to count
	goodParagraph  int      // first paragraph exceeding this wins outright
	maxParagraphs  int      // qualifying paragraphs scanned; 0 = all
	bodyDateScan   bool     // scan the whole page text for a date as last resort
}

// articlePage is the tagged result of a detail-page extraction. Zero-value
// fields mean absent: the caller decides what degrades and what excludes.
type articlePage struct {
	Title       string
	Summary     string
	ImageURL    string
	PublishedAt time.Time
}

// imageAttrs cover the lazy-loading variants the portals use.
var imageAttrs = []string{"src", "data-src", "data-original", "data-lazy-src"}

var (
	dateOnlyRe = regexp.MustCompile(`(\d{2}/\d{2}/\d{4})`)
	dateTimeRe = regexp.MustCompile(`(\d{2}/\d{2}/\d{4}).*?(\d{2}:\d{2})`)
)

// extractArticlePage pulls title, summary, image and publish date out of a
// parsed article page. A page without any title is not an article.
func extractArticlePage(doc *goquery.Document, pageURL string, rules pageRules, loc *time.Location) (articlePage, error) {
	var page articlePage

	page.Title = firstText(doc, "h1", "h2", "title")
	if page.Title == "" {
		return page, &ExtractError{Kind: ExtractUnparseable, URL: pageURL}
	}

	page.Summary = extractSummary(doc, rules)
	page.ImageURL = extractImage(doc, pageURL, rules)
	page.PublishedAt = extractPublishedAt(doc, rules, loc)
	return page, nil
}

// fillWithReadability runs the generic extractor over the raw page when the
// portal-specific selectors came up empty.
func fillWithReadability(page *articlePage, raw []byte, pageURL string) {
	if page.Summary != "" && page.ImageURL != "" {
		return
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	art, err := readability.FromReader(bytes.NewReader(raw), parsed)
	if err != nil {
		return
	}
	if page.Summary == "" {
		page.Summary = sanitizeText(art.Excerpt)
	}
	if page.ImageURL == "" {
		page.ImageURL = strings.TrimSpace(art.Image)
	}
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if txt := sanitizeText(doc.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}
	return ""
}

// extractSummary walks the first matching body container and returns the
// first substantial paragraph: ideally one past goodParagraph runes, else
// the first past minParagraph.
func extractSummary(doc *goquery.Document, rules pageRules) string {
	for _, sel := range rules.bodySelectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}

		var summary, fallback string
		count := 0
		container.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
			text := sanitizeText(p.Text())
			if len([]rune(text)) <= rules.minParagraph || hasMarker(text, rules.skipMarkers) {
				return true
			}
			count++
			if fallback == "" {
				fallback = text
			}
			if len([]rune(text)) > rules.goodParagraph {
				summary = text
				return false
			}
			return rules.maxParagraphs <= 0 || count < rules.maxParagraphs
		})

		if summary == "" {
			summary = fallback
		}
		if summary != "" {
			return summary
		}
	}
	return ""
}

func hasMarker(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// extractImage prefers the og:image meta, then the portal's own containers.
func extractImage(doc *goquery.Document, pageURL string, rules pageRules) string {
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		if u := absoluteURL(pageURL, strings.TrimSpace(og)); u != "" {
			return u
		}
	}

	for _, sel := range rules.imageSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			for _, attr := range imageAttrs {
				v, ok := img.Attr(attr)
				if !ok {
					continue
				}
				v = strings.TrimSpace(v)
				if v == "" || strings.HasPrefix(v, "data:") {
					continue
				}
				found = absoluteURL(pageURL, v)
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// extractPublishedAt tries the portal's date blocks, then machine-readable
// hints, then a page-wide scan for a Brazilian date.
func extractPublishedAt(doc *goquery.Document, rules pageRules, loc *time.Location) time.Time {
	for _, sel := range rules.dateSelectors {
		found := time.Time{}
		doc.Find(sel).EachWithBreak(func(_ int, block *goquery.Selection) bool {
			if ts := parseBrazilianDate(sanitizeText(block.Text()), loc); !ts.IsZero() {
				found = ts
				return false
			}
			return true
		})
		if !found.IsZero() {
			return found
		}
	}

	if v, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if ts := parseISOTimestamp(v, loc); !ts.IsZero() {
			return ts
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if ts := parseISOTimestamp(v, loc); !ts.IsZero() {
			return ts
		}
	}

	if rules.bodyDateScan {
		return parseBrazilianDate(sanitizeText(doc.Text()), loc)
	}
	return time.Time{}
}

// parseBrazilianDate reads dd/MM/yyyy with an optional HH:mm nearby. The
// text must already be whitespace-collapsed.
func parseBrazilianDate(text string, loc *time.Location) time.Time {
	if m := dateTimeRe.FindStringSubmatch(text); m != nil {
		if ts, err := time.ParseInLocation("02/01/2006 15:04", m[1]+" "+m[2], loc); err == nil {
			return ts
		}
	}
	if m := dateOnlyRe.FindStringSubmatch(text); m != nil {
		if ts, err := time.ParseInLocation("02/01/2006", m[1], loc); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func parseISOTimestamp(v string, loc *time.Location) time.Time {
	v = strings.TrimSpace(v)
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, v, loc); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// combineListingDate merges a dd/MM/yyyy heading with an HH:mm entry time.
func combineListingDate(dateStr, hourStr string, loc *time.Location) time.Time {
	dateStr, hourStr = strings.TrimSpace(dateStr), strings.TrimSpace(hourStr)
	if hourStr != "" {
		if ts, err := time.ParseInLocation("02/01/2006 15:04", dateStr+" "+hourStr, loc); err == nil {
			return ts
		}
	}
	ts, err := time.ParseInLocation("02/01/2006", dateStr, loc)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func absoluteURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
