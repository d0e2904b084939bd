package collector

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Value patterns match Brazilian money formatting: thousands dot, decimal
// comma, an optional leading R$.
var (
	quoteValueRe     = regexp.MustCompile(`R\$\s*(\d{1,3}(?:\.\d{3})*,\d{2}|\d{1,3}[\.,]\d{2})`)
	quoteBareValueRe = regexp.MustCompile(`(\d{1,3}(?:\.\d{3})*,\d{2}|\d{1,3}[\.,]\d{2})`)
	quoteChangeRe    = regexp.MustCompile(`([+-]?\d{1,3}(?:[\.,]\d{2})%)`)
)

// soyTableMarkers pick the price table out of the soy section, which also
// carries futures and port premium tables.
var soyTableMarkers = []string{"r$/sc", "preço", "preco", "praça", "praca"}

// QuotesFetcher reads the market board on Notícias Agrícolas. Values keep
// the portal's own formatting (decimal comma) because the dashboard shows
// them verbatim. A quote whose section cannot be parsed still appears with
// empty values so the board keeps its shape.
type QuotesFetcher struct {
	client  *Client
	baseURL string
}

func NewQuotesFetcher(client *Client) *QuotesFetcher {
	return &QuotesFetcher{client: client, baseURL: noticiasAgricolasBase}
}

// Fetch returns the dollar, coffee, corn and soy quotes, in that order. It
// fails only when the main board page is unreachable; the dedicated
// commodity pages degrade to the board's own sections.
func (f *QuotesFetcher) Fetch(ctx context.Context) ([]Quote, error) {
	board, _, err := f.client.GetDocument(ctx, f.baseURL+"/cotacoes/")
	if err != nil {
		return nil, fmt.Errorf("quotes: %w", err)
	}

	quotes := make([]Quote, 0, 4)

	usdValue := sanitizeText(board.Find(".box-dolar .valor").First().Text())
	usdChange := sanitizeText(board.Find(".box-dolar .porcentagem").First().Text())
	quotes = append(quotes, Quote{
		Key:    "dolar",
		Label:  "Dólar",
		Value:  usdValue,
		Change: usdChange,
		Unit:   "R$",
		Source: noticiasAgricolasName,
	})

	quotes = append(quotes, f.coffeeQuote(ctx, board))
	milhoValue, milhoChange := extractIndicator(board, "Indicador do Milho Esalq/B3", nil)
	quotes = append(quotes, Quote{
		Key:    "milho",
		Label:  "Milho",
		Value:  milhoValue,
		Change: milhoChange,
		Unit:   "R$/sc 60 kg",
		Source: "ESALQ/B3",
	})
	quotes = append(quotes, f.soyQuote(ctx, board))

	return quotes, nil
}

// coffeeQuote prefers the dedicated coffee page, which carries the Cepea
// indicator table. When that page is down the board's own coffee section
// still gives a usable number.
func (f *QuotesFetcher) coffeeQuote(ctx context.Context, board *goquery.Document) Quote {
	q := Quote{Key: "cafe", Label: "Café", Unit: "R$/sc", Source: "Cepea/Esalq"}
	doc, _, err := f.client.GetDocument(ctx, f.baseURL+"/cotacoes/cafe")
	if err == nil {
		q.Value, q.Change = extractIndicator(doc, "Indicador Café Arábica - Cepea/Esalq", nil)
		return q
	}
	log.Printf("quotes: coffee page: %v", err)
	q.Value, q.Change = extractIndicator(board, "Café", nil)
	return q
}

// soyQuote reads the board first and falls back to the dedicated soy page
// when the board section yields no value.
func (f *QuotesFetcher) soyQuote(ctx context.Context, board *goquery.Document) Quote {
	const term = "Indicador da Soja ESALQ/B3 - Paranaguá"
	q := Quote{Key: "soja", Label: "Soja", Unit: "R$/sc", Source: "ESALQ/B3 - Paranaguá"}
	q.Value, q.Change = extractIndicator(board, term, soyTableMarkers)
	if q.Value != "" {
		return q
	}
	doc, _, err := f.client.GetDocument(ctx, f.baseURL+"/cotacoes/soja")
	if err != nil {
		log.Printf("quotes: soy page: %v", err)
		return q
	}
	q.Value, q.Change = extractIndicator(doc, term, soyTableMarkers)
	return q
}

// extractIndicator finds the h2/h3 whose text contains term, takes the next
// few tables in document order and reads the price out of the first one
// (or the first one matching preferMarkers). Empty strings mean the section
// was not found.
func extractIndicator(doc *goquery.Document, term string, preferMarkers []string) (string, string) {
	lowTerm := strings.ToLower(term)
	var heading *html.Node
	doc.Find("h2, h3").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(nodeText(sel.Get(0))), lowTerm) {
			heading = sel.Get(0)
			return false
		}
		return true
	})
	if heading == nil {
		return "", ""
	}

	tables := tablesAfter(heading, 4)
	if len(tables) == 0 {
		return "", ""
	}
	table := tables[0]
	for _, t := range tables {
		if len(preferMarkers) > 0 && hasMarker(strings.ToLower(nodeText(t)), preferMarkers) {
			table = t
			break
		}
	}

	text := nodeText(table)
	value := firstGroup(quoteValueRe, text)
	if value == "" {
		value = firstGroup(quoteBareValueRe, text)
	}
	return value, firstGroup(quoteChangeRe, text)
}

// tablesAfter collects up to max table elements that follow start in
// document order, nested tables included.
func tablesAfter(start *html.Node, max int) []*html.Node {
	var tables []*html.Node
	for n := nextNode(start); n != nil && len(tables) < max; n = nextNode(n) {
		if n.Type == html.ElementNode && n.Data == "table" {
			tables = append(tables, n)
		}
	}
	return tables
}

// nextNode advances one step in document order: first child, else next
// sibling, else the nearest ancestor's next sibling.
func nextNode(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for ; n != nil; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteByte(' ')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sanitizeText(b.String())
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
