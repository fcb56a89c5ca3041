package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/tablekeep/pkg/observability"
	"github.com/robfig/cron/v3"
)

// Cleaner deletes events older than a cutoff
type Cleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// Purger enforces the retention window on a schedule
type Purger struct {
	cleaner   Cleaner
	retention time.Duration
	logger    *observability.Logger
	now       func() time.Time
}

// NewPurger returns a purger that keeps events for retention
func NewPurger(cleaner Cleaner, retention time.Duration, logger *observability.Logger) *Purger {
	return &Purger{cleaner: cleaner, retention: retention, logger: logger, now: time.Now}
}

// Run deletes everything older than the retention window
func (p *Purger) Run(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.cleaner.Cleanup(ctx, cutoff)
	if err != nil {
		p.logger.WithError(err).Error("Audit retention cleanup failed")
		return 0, err
	}
	p.logger.WithFields(map[string]interface{}{
		"removed": n,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("Audit retention cleanup completed")
	return n, nil
}

// Schedule registers the cleanup on c
func (p *Purger) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		defer observability.RecoverPanic(p.logger, "audit retention")
		_, _ = p.Run(ctx)
	})
}
