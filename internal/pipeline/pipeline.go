package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"agrohub/internal/collector"
	"agrohub/internal/processor"
)

// ErrAllSourcesFailed reports a run in which not a single source delivered.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Pipeline runs every configured source and folds what comes back into one
// snapshot. Failures stay per-source: a broken portal degrades the result,
// it does not sink the run.
type Pipeline struct {
	sources       []collector.Source
	proc          *processor.Processor
	sourceTimeout time.Duration
}

func New(sources []collector.Source, proc *processor.Processor, sourceTimeout time.Duration) *Pipeline {
	if sourceTimeout <= 0 {
		sourceTimeout = time.Minute
	}
	return &Pipeline{sources: sources, proc: proc, sourceTimeout: sourceTimeout}
}

// Run fans out to all sources in parallel, each under its own timeout, then
// dedupes, windows and sorts the merge. now anchors every recency decision
// of the run, so one clock reading governs the whole snapshot.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (processor.Snapshot, error) {
	type result struct {
		articles []collector.Article
		err      error
	}
	results := make([]result, len(p.sources))

	var wg sync.WaitGroup
	for i, src := range p.sources {
		wg.Add(1)
		go func(i int, src collector.Source) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, p.sourceTimeout)
			defer cancel()

			articles, err := src.Fetch(sctx, now)
			results[i] = result{articles: articles, err: err}
		}(i, src)
	}
	wg.Wait()

	var merged []collector.Article
	var degraded []string
	failures := 0
	for i, src := range p.sources {
		res := results[i]
		if res.err != nil {
			log.Printf("pipeline: %s: %v", src.Name(), res.err)
			degraded = append(degraded, src.Name())
			failures++
			continue
		}
		if len(res.articles) == 0 {
			log.Printf("pipeline: %s returned 0 articles", src.Name())
			continue
		}
		merged = append(merged, res.articles...)
	}

	if len(p.sources) > 0 && failures == len(p.sources) {
		return processor.Snapshot{}, fmt.Errorf("pipeline: %w", ErrAllSourcesFailed)
	}

	return processor.Snapshot{
		Articles:    p.proc.Build(merged, now),
		GeneratedAt: now,
		Degraded:    degraded,
	}, nil
}
