package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Topic is one news category: its dashboard label, the listing slug it is
// scraped from, the keyword filter applied to cross-topic sources, and the
// accent color the frontend renders it with.
type Topic struct {
	ID       string   `yaml:"id"`
	Label    string   `yaml:"label"`
	Slug     string   `yaml:"slug"`
	Keywords []string `yaml:"keywords"`
	Color    string   `yaml:"color"`
}

// Matches reports whether the text belongs to the topic. Topics without
// keywords accept everything from their own listing.
func (t Topic) Matches(text string) bool {
	if len(t.Keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range t.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Catalog holds the immutable topic table, loaded once at startup.
type Catalog struct {
	topics []Topic
	byID   map[string]Topic
	global []string
}

// defaultTopics mirrors the production dashboard configuration. The three
// agronegocio topics share one listing and are told apart by keywords.
var defaultTopics = []Topic{
	{ID: "defensivos", Label: "Defensivos", Slug: "agronegocio", Keywords: []string{"defensiv", "biológico", "praga", "fungicida", "inseticida", "herbicida"}, Color: "#0FA66D"},
	{ID: "fertilizantes", Label: "Fertilizantes", Slug: "agronegocio", Keywords: []string{"fertiliz", "adubo", "nutri", "solo", "fertirrig", "nutriente"}, Color: "#77C043"},
	{ID: "irrigacao", Label: "Irrigação", Slug: "agronegocio", Keywords: []string{"irrig", "gotejamento", "pivô central", "pivo central", "aspersão", "aspersao"}, Color: "#1E90FF"},
	{ID: "soja", Label: "Soja", Slug: "soja", Keywords: nil, Color: "#23A455"},
	{ID: "milho", Label: "Milho", Slug: "milho", Keywords: nil, Color: "#E6B325"},
	{ID: "cafe", Label: "Café", Slug: "cafe", Keywords: nil, Color: "#8B4513"},
}

// extraGlobalKeywords covers accent variants the topic table itself does not
// spell out, so the cross-topic relevance filter accepts both forms.
var extraGlobalKeywords = []string{"cafe", "café", "irrigacao", "irrigação"}

// classifyRules assign cross-topic articles to a topic, checked in order.
// English terms cover the international feed, Portuguese the local listings.
var classifyRules = []struct {
	topicID string
	terms   []string
}{
	{"fertilizantes", []string{"fertiliz", "adubo", "fertilizer", "nutri", "nutrição", "nutrient", "nue", "foliar"}},
	{"irrigacao", []string{"irrig", "irrigação", "irrigation"}},
	{"soja", []string{"soy", "soja"}},
	{"milho", []string{"corn", "milho"}},
	{"cafe", []string{"coffee", "café", "cafe"}},
}

// fallbackTopicID receives cross-topic articles no rule claimed.
const fallbackTopicID = "defensivos"

// Default returns the built-in production catalog.
func Default() *Catalog {
	c, err := New(defaultTopics)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a topic table from a YAML file, replacing the defaults
// wholesale. An empty path keeps the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var file struct {
		Topics []Topic `yaml:"topics"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	c, err := New(file.Topics)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// New builds a catalog from an explicit topic table, validating IDs and
// normalizing keywords to lowercase.
func New(topics []Topic) (*Catalog, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics configured")
	}

	c := &Catalog{
		topics: make([]Topic, 0, len(topics)),
		byID:   make(map[string]Topic, len(topics)),
	}

	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, fmt.Errorf("topic with empty id")
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic id %q", t.ID)
		}
		seen[t.ID] = struct{}{}

		if t.Label == "" {
			t.Label = t.ID
		}
		for i, kw := range t.Keywords {
			t.Keywords[i] = strings.ToLower(strings.TrimSpace(kw))
		}

		c.topics = append(c.topics, t)
		c.byID[t.ID] = t
	}

	c.global = buildGlobalKeywords(c.topics)
	return c, nil
}

// buildGlobalKeywords unions topic ids, topic keywords and the accent
// variants into one deduplicated relevance list.
func buildGlobalKeywords(topics []Topic) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(kw string) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			return
		}
		if _, ok := seen[kw]; ok {
			return
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}

	for _, t := range topics {
		add(t.ID)
		for _, kw := range t.Keywords {
			add(kw)
		}
	}
	for _, kw := range extraGlobalKeywords {
		add(kw)
	}
	return out
}

// Topics returns the table in declaration order.
func (c *Catalog) Topics() []Topic {
	return c.topics
}

// Get looks a topic up by id.
func (c *Catalog) Get(id string) (Topic, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Relevant reports whether the text mentions any configured topic at all.
// Cross-topic sources use it to drop off-domain articles.
func (c *Catalog) Relevant(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.global {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Classify assigns a cross-topic article to a topic by its text. Rules are
// checked in declaration order; unclaimed articles land on the fallback
// topic, or the first configured topic when the fallback is absent.
func (c *Catalog) Classify(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range classifyRules {
		if _, ok := c.byID[rule.topicID]; !ok {
			continue
		}
		for _, term := range rule.terms {
			if strings.Contains(lower, term) {
				return rule.topicID
			}
		}
	}
	if _, ok := c.byID[fallbackTopicID]; ok {
		return fallbackTopicID
	}
	return c.topics[0].ID
}
