package processor

import (
	"reflect"
	"testing"
	"time"

	"agrohub/internal/collector"
)

func TestDedupeFirstSeenWins(t *testing.T) {
	articles := []collector.Article{
		{Title: "Soja em alta", URL: "https://Example.org/news/soja-1/?utm_source=x#topo", Summary: "resumo A", ImageURL: "a.jpg", Source: "Portal A"},
		{Title: "Soja em alta (repetida)", URL: "https://example.org/news/soja-1", Summary: "resumo B", ImageURL: "b.jpg", Source: "Portal B"},
		{Title: "Outra notícia", URL: "https://example.org/news/milho-2", Summary: "resumo C", Source: "Portal A"},
	}

	out := Dedupe(articles)
	if len(out) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(out))
	}
	if out[0].Title != "Soja em alta" {
		t.Fatalf("expected the first occurrence to win, got %q", out[0].Title)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	articles := []collector.Article{
		{Title: "A", URL: "https://example.org/a", Summary: "s"},
		{Title: "A dup", URL: "https://example.org/a/", Summary: "s2"},
		{Title: "B", URL: "https://example.org/b", Summary: "s3"},
	}

	once := Dedupe(articles)
	twice := Dedupe(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("dedupe not idempotent: %+v vs %+v", once, twice)
	}
}

func TestDedupeUpgradesEmptyFields(t *testing.T) {
	articles := []collector.Article{
		{Title: "Sem resumo", URL: "https://example.org/a", Summary: "", ImageURL: "img.jpg"},
		{Title: "Com resumo", URL: "https://example.org/a", Summary: "resumo completo", ImageURL: ""},
		{Title: "Final", URL: "https://example.org/z", Summary: "outro"},
	}

	out := Dedupe(articles)
	if len(out) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(out))
	}
	// the richer duplicate replaces the first, in the first's position
	if out[0].Title != "Com resumo" || out[0].Summary != "resumo completo" {
		t.Fatalf("expected the duplicate with a summary to take over, got %+v", out[0])
	}

	full := []collector.Article{
		{Title: "Completa", URL: "https://example.org/b", Summary: "resumo", ImageURL: "b.jpg"},
		{Title: "Também completa", URL: "https://example.org/b", Summary: "resumo novo", ImageURL: "novo.jpg"},
	}
	out = Dedupe(full)
	if out[0].Title != "Completa" {
		t.Fatalf("a complete incumbent must not be replaced, got %+v", out[0])
	}
}

func TestDedupeTitleSourceFallback(t *testing.T) {
	articles := []collector.Article{
		{Title: "Boletim do Café", Source: "Portal A"},
		{Title: "boletim do café", Source: "portal a"},
		{Title: "Boletim do Café", Source: "Portal B"},
	}

	out := Dedupe(articles)
	if len(out) != 2 {
		t.Fatalf("expected 2 articles (same title+source collapses), got %d", len(out))
	}
}

func TestBuildWindowBoundaryInclusive(t *testing.T) {
	now := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	p := New(7)

	articles := []collector.Article{
		{Title: "na borda", URL: "https://example.org/edge", PublishedAt: now.Add(-7 * 24 * time.Hour)},
		{Title: "velha demais", URL: "https://example.org/old", PublishedAt: now.Add(-7*24*time.Hour - time.Second)},
		{Title: "recente", URL: "https://example.org/new", PublishedAt: now.Add(-time.Hour)},
	}

	out := p.Build(articles, now)
	if len(out) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(out))
	}
	for _, art := range out {
		if art.Title == "velha demais" {
			t.Fatalf("article past the window must be dropped")
		}
	}
}

func TestBuildSortsNewestFirstKeepingTies(t *testing.T) {
	now := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	p := New(7)

	sameHour := now.Add(-2 * time.Hour)
	articles := []collector.Article{
		{Title: "meio", URL: "https://example.org/1", PublishedAt: now.Add(-3 * time.Hour)},
		{Title: "empate primeiro", URL: "https://example.org/2", PublishedAt: sameHour},
		{Title: "mais nova", URL: "https://example.org/3", PublishedAt: now.Add(-time.Hour)},
		{Title: "empate segundo", URL: "https://example.org/4", PublishedAt: sameHour},
	}

	out := p.Build(articles, now)
	wantOrder := []string{"mais nova", "empate primeiro", "empate segundo", "meio"}
	if len(out) != len(wantOrder) {
		t.Fatalf("expected %d articles, got %d", len(wantOrder), len(out))
	}
	for i, title := range wantOrder {
		if out[i].Title != title {
			t.Fatalf("out[%d] = %q, want %q", i, out[i].Title, title)
		}
	}
}
