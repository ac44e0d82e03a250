package database

import (
	"context"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
)

// DefaultPruneInterval is how often expired sightings are removed
const DefaultPruneInterval = time.Hour

// Pruner periodically deletes sightings older than the retention window
type Pruner struct {
	repo      *SightingRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

// NewPruner creates a pruner. A zero retention keeps everything.
func NewPruner(repo *SightingRepository, retention, interval time.Duration, log *logger.Logger) *Pruner {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    log.WithComponent("database.pruner"),
		now:       time.Now,
	}
}

// Start prunes on startup and then once per interval until ctx is done
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("Sighting retention disabled")
		return
	}

	p.logger.Info("Starting sighting pruner",
		logger.Duration("retention", p.retention),
		logger.Duration("interval", p.interval))
	p.run()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Sighting pruner stopped")
			return
		case <-ticker.C:
			p.run()
		}
	}
}

func (p *Pruner) run() {
	if _, err := p.Prune(); err != nil {
		p.logger.Error("Failed to prune sightings", logger.Error(err))
	}
}

// Prune deletes expired sightings once and returns how many were removed
func (p *Pruner) Prune() (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	deleted, err := p.repo.DeleteOlderThan(p.now().Add(-p.retention))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("Pruned sightings", logger.Int64("deleted", deleted))
	}
	return deleted, nil
}
