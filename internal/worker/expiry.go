// Package worker runs background jobs inside the API server.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer clears premium access whose period has ended.
type Expirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) (int, error)
}

// PremiumExpiry sweeps lapsed premium users on a fixed interval.
type PremiumExpiry struct {
	expirer  Expirer
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewPremiumExpiry creates the sweeper. Each sweep gets at most interval/2 to finish.
func NewPremiumExpiry(expirer Expirer, interval time.Duration, logger *zap.Logger) *PremiumExpiry {
	return &PremiumExpiry{
		expirer:  expirer,
		interval: interval,
		timeout:  interval / 2,
		logger:   logger.Named("premium_expiry"),
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// A non-positive interval disables the worker.
func (w *PremiumExpiry) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Warn("Premium expiry worker disabled", zap.Duration("interval", w.interval))
		return
	}
	w.logger.Info("Premium expiry worker started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Premium expiry worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *PremiumExpiry) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Premium expiry sweep panicked", zap.Any("panic", r))
		}
	}()
	sweepCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	n, err := w.expirer.ExpireLapsed(sweepCtx, w.now())
	if err != nil {
		w.logger.Error("Premium expiry sweep failed", zap.Int("expired", n), zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Info("Expired lapsed premium users", zap.Int("count", n))
	}
}
