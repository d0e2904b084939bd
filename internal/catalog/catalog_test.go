package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogTable(t *testing.T) {
	c := Default()

	topics := c.Topics()
	if len(topics) != 6 {
		t.Fatalf("expected 6 default topics, got %d", len(topics))
	}

	wantOrder := []string{"defensivos", "fertilizantes", "irrigacao", "soja", "milho", "cafe"}
	for i, id := range wantOrder {
		if topics[i].ID != id {
			t.Fatalf("topic order[%d] = %q, want %q", i, topics[i].ID, id)
		}
	}

	soja, ok := c.Get("soja")
	if !ok {
		t.Fatalf("soja topic missing")
	}
	if soja.Slug != "soja" || soja.Color == "" {
		t.Fatalf("soja topic incomplete: %+v", soja)
	}
}

func TestTopicMatches(t *testing.T) {
	c := Default()

	defensivos, _ := c.Get("defensivos")
	if !defensivos.Matches("Nova PRAGA ameaça lavouras do cerrado") {
		t.Fatalf("defensivos should match keyword text")
	}
	if defensivos.Matches("Colheita avança no sul do país") {
		t.Fatalf("defensivos should not match unrelated text")
	}

	// keywordless topics accept everything from their own listing
	soja, _ := c.Get("soja")
	if !soja.Matches("qualquer texto") {
		t.Fatalf("keywordless topic should match any text")
	}
}

func TestClassify(t *testing.T) {
	c := Default()

	cases := []struct {
		text string
		want string
	}{
		{"Fertilizer prices drop across Brazil", "fertilizantes"},
		{"Nova linha de adubo foliar chega ao mercado", "fertilizantes"},
		{"Irrigation systems expand in Cerrado", "irrigacao"},
		{"Soybean rust resistance update", "soja"},
		{"Corn planting hits record pace", "milho"},
		{"Coffee exports rise in July", "cafe"},
		{"New crop protection label approved", "defensivos"},
	}

	for _, tc := range cases {
		if got := c.Classify(tc.text); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestRelevant(t *testing.T) {
	c := Default()

	if !c.Relevant("Mercado de soja segue firme") {
		t.Fatalf("soja text should be relevant")
	}
	if !c.Relevant("Novo fungicida registrado no MAPA") {
		t.Fatalf("fungicida text should be relevant")
	}
	if c.Relevant("Eleições municipais dominam o noticiário") {
		t.Fatalf("off-domain text should not be relevant")
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yml")
	body := `topics:
  - id: algodao
    label: Algodão
    slug: algodao
    keywords: [algod]
    color: "#FFFFFF"
  - id: trigo
    label: Trigo
    slug: trigo
    color: "#AA8833"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write topics file: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(c.Topics()) != 2 {
		t.Fatalf("expected 2 topics from file, got %d", len(c.Topics()))
	}
	if _, ok := c.Get("soja"); ok {
		t.Fatalf("file override should replace defaults entirely")
	}

	// no defensivos topic: classification falls back to the first topic
	if got := c.Classify("market report"); got != "algodao" {
		t.Fatalf("fallback classification = %q, want %q", got, "algodao")
	}

	// empty path keeps the built-in table
	def, err := Load("")
	if err != nil {
		t.Fatalf("Load empty path error: %v", err)
	}
	if len(def.Topics()) != 6 {
		t.Fatalf("empty path should load defaults, got %d topics", len(def.Topics()))
	}
}

func TestNewRejectsBadTables(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for empty table")
	}

	dup := []Topic{{ID: "soja"}, {ID: "soja"}}
	if _, err := New(dup); err == nil {
		t.Fatalf("expected error for duplicate ids")
	}
}
