package billing

import (
	"context"
	"time"

	"github.com/platinummonkey/tablekeep/pkg/observability"
	"github.com/robfig/cron/v3"
)

// Sweeper periodically moves lapsed paid subscriptions to PAST_DUE.
type Sweeper struct {
	service Service
	metrics *observability.Metrics
	logger  *observability.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewSweeper returns a sweeper over service. metrics may be nil.
func NewSweeper(service Service, metrics *observability.Metrics, logger *observability.Logger) *Sweeper {
	return &Sweeper{
		service: service,
		metrics: metrics,
		logger:  logger,
		timeout: 5 * time.Minute,
		now:     time.Now,
	}
}

// Run performs a single sweep and returns the number of subscriptions marked.
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	n, err := s.service.MarkExpiredPastDue(ctx, start.UTC())
	if err != nil {
		s.record("error", 0)
		s.logger.WithError(err).Error("Billing sweep failed")
		return 0, err
	}
	s.record("success", n)
	s.logger.WithFields(map[string]interface{}{
		"marked":   n,
		"duration": s.now().Sub(start).String(),
	}).Info("Billing sweep completed")
	return n, nil
}

func (s *Sweeper) record(status string, marked int64) {
	if s.metrics == nil {
		return
	}
	s.metrics.BillingSweepsTotal.WithLabelValues(status).Inc()
	if marked > 0 {
		s.metrics.SubscriptionsMarkedTotal.Add(float64(marked))
	}
}

// Schedule registers the sweep on c using a standard cron spec or descriptor.
func (s *Sweeper) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		defer observability.RecoverPanic(s.logger, "billing sweep")
		_, _ = s.Run(ctx)
	})
}
