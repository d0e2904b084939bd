package scheduler

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"agrohub/internal/cache"
)

// Scheduler asks the snapshot stores to refresh on a cron cadence. The
// stores coalesce overlapping runs and respect their own TTLs, so a round
// here is a request, not a guarantee that collection happens.
type Scheduler struct {
	cron   *cron.Cron
	stores []cache.Refresher
}

func New(spec string, stores ...cache.Refresher) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:   c,
		stores: stores,
	}

	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// Warm the caches shortly after boot so the first page load does not
	// pay for a whole collection round.
	const startupDelay = 2 * time.Second
	time.AfterFunc(startupDelay, func() {
		go s.runOnce()
	})
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunOnce exposes a single round for manual triggering.
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	log.Printf("scheduler: refresh round for %d stores", len(s.stores))
	for _, store := range s.stores {
		store.RequestRefresh(false)
	}
}
