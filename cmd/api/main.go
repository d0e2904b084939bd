package main

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"agrohub/internal/api"
	"agrohub/internal/cache"
	"agrohub/internal/catalog"
	"agrohub/internal/collector"
	"agrohub/internal/config"
	"agrohub/internal/digest"
	"agrohub/internal/pipeline"
	"agrohub/internal/processor"
	"agrohub/internal/scheduler"
)

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

	// One listing scraper per catalog topic, then the cross-topic portals.
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

	news := cache.New("news", cfg.CacheTTL, cfg.RefreshTimeout, pipe.Run)

	quotesFetcher := collector.NewQuotesFetcher(client)
	quotes := cache.New("quotes", cfg.CacheTTL, cfg.RefreshTimeout,
		func(ctx context.Context, _ time.Time) ([]collector.Quote, error) {
			return quotesFetcher.Fetch(ctx)
		})

	sched, err := scheduler.New(cfg.CronSpec, news, quotes)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	sched.Start()

	builder, err := digest.NewBuilder(cat, loc)
	if err != nil {
		log.Fatalf("init digest builder failed: %v", err)
	}

	var mailer digest.Mailer
	if cfg.MailConfigured() {
		mailer = digest.NewSMTPMailer(digest.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
			To:   cfg.SMTPTo,
		})
	} else {
		log.Printf("smtp not configured, digest sending disabled")
	}

	r := gin.Default()
	api.NewServer(news, quotes, cat, loc, builder, mailer).RegisterRoutes(r)

	// When a frontend build directory is configured, host it and let the
	// SPA router own every unmatched GET.
	if cfg.WebRoot != "" {
		assetsDir := filepath.Join(cfg.WebRoot, "assets")
		indexFile := filepath.Join(cfg.WebRoot, "index.html")
		r.Static("/assets", assetsDir)
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet {
				c.Status(http.StatusNotFound)
				return
			}
			c.File(indexFile)
		})
	}

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}
