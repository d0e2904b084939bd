package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"agrohub/internal/catalog"
	"agrohub/internal/collector"
	"agrohub/internal/config"
	"agrohub/internal/pipeline"
	"agrohub/internal/processor"
)

// A single collection round without the server: prints the aggregated
// snapshot and quote board as JSON, useful for checking what the portals
// currently yield.
func main() {
	cfg := config.Load()

	cat, err := catalog.Load(cfg.TopicsFile)
	if err != nil {
		log.Fatalf("load topic catalog failed: %v", err)
	}

	loc := cfg.Location()
	client := collector.NewClient(cfg.FetchTimeout)

	opts := collector.SourceOptions{
		MaxArticles: cfg.SourceMaxArticles,
		Concurrency: cfg.DetailConcurrency,
		Window:      time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		Location:    loc,
	}

	var sources []collector.Source
	for _, topic := range cat.Topics() {
		sources = append(sources, collector.NewNoticiasAgricolasSource(topic, client, opts))
	}
	sources = append(sources,
		collector.NewGlobalCropSource(cat, client, opts),
		collector.NewAgrolinkSource(cat, client, opts),
	)

	proc := processor.New(cfg.RetentionDays)
	pipe := pipeline.New(sources, proc, cfg.SourceTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RefreshTimeout)
	defer cancel()

	snap, err := pipe.Run(ctx, time.Now())
	if err != nil {
		log.Fatalf("collection round failed: %v", err)
	}

	quotes, err := collector.NewQuotesFetcher(client).Fetch(ctx)
	if err != nil {
		log.Printf("quotes fetch failed: %v", err)
	}

	out := struct {
		GeneratedAt time.Time           `json:"generated_at"`
		Degraded    []string            `json:"degraded,omitempty"`
		Articles    []collector.Article `json:"articles"`
		Quotes      []collector.Quote   `json:"quotes,omitempty"`
	}{snap.GeneratedAt, snap.Degraded, snap.Articles, quotes}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode result failed: %v", err)
	}
}
