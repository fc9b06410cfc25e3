package orders

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/config"
	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/metrics"
	"github.com/safar/order-engine/internal/redisx"
	"github.com/safar/order-engine/internal/store"
)

// Locker keeps replicas from sweeping the same tick. Correctness does not
// depend on it; the per-order guard already makes concurrent sweeps safe.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (*redisx.Lease, bool, error)
	Release(ctx context.Context, lease *redisx.Lease) error
}

type SweepResult struct {
	Scanned   int `json:"scanned"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type Sweeper struct {
	svc    *Service
	cfg    config.SweeperConfig
	locker Locker
	logger *zap.Logger
}

// NewSweeper returns a sweeper for svc. locker may be nil.
func NewSweeper(svc *Service, cfg config.SweeperConfig, locker Locker, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{svc: svc, cfg: cfg, locker: locker, logger: logger}
}

// Sweep cancels every PENDING unpaid order past its payment deadline. Each
// order is expired in its own transaction; orders that changed state in the
// meantime are skipped and infrastructure failures do not stop the batch.
func (sw *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	return sw.sweep(ctx, "manual")
}

func (sw *Sweeper) sweep(ctx context.Context, trigger string) (SweepResult, error) {
	var result SweepResult
	start := time.Now()

	metrics.SweepRuns.WithLabelValues(trigger).Inc()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	for {
		ids, err := store.FindExpiredOrderIDs(ctx, sw.svc.db, sw.svc.clock(), sw.cfg.BatchSize)
		if err != nil {
			return result, err
		}
		result.Scanned += len(ids)

		progressed := false
		for _, id := range ids {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			_, err := sw.svc.expireOrder(ctx, id)
			switch {
			case err == nil:
				result.Cancelled++
				progressed = true
				metrics.SweepOrders.WithLabelValues("cancelled").Inc()
			case errors.Is(err, database.ErrInvalidOrderState), errors.Is(err, database.ErrOrderNotFound):
				result.Skipped++
				progressed = true
				metrics.SweepOrders.WithLabelValues("skipped").Inc()
			default:
				result.Failed++
				metrics.SweepOrders.WithLabelValues("failed").Inc()
				sw.logger.Error("expire order failed", zap.Int64("order_id", id), zap.Error(err))
			}
		}

		// A short batch means nothing is left. A batch without progress would
		// only return the same failing rows again.
		if len(ids) < sw.cfg.BatchSize || !progressed {
			break
		}
	}

	sw.logger.Info("expiry sweep finished",
		zap.String("trigger", trigger),
		zap.Int("scanned", result.Scanned),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

// Run sweeps every Interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.cfg.Interval)
	defer ticker.Stop()

	sw.logger.Info("expiry sweeper started", zap.Duration("interval", sw.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

func (sw *Sweeper) tick(ctx context.Context) {
	if sw.locker != nil {
		lease, ok, err := sw.locker.TryAcquire(ctx, redisx.KeySweepLock, sw.cfg.LockTTL)
		if err != nil {
			// Redis being down must not stop expiry; sweeping without the
			// lock is still safe.
			sw.logger.Warn("sweep lock unavailable, sweeping anyway", zap.Error(err))
		} else if !ok {
			sw.logger.Debug("sweep lock held by another replica")
			return
		} else {
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := sw.locker.Release(releaseCtx, lease); err != nil {
					sw.logger.Warn("release sweep lock failed", zap.Error(err))
				}
			}()
		}
	}

	if _, err := sw.sweep(ctx, "scheduled"); err != nil && !errors.Is(err, context.Canceled) {
		sw.logger.Error("expiry sweep failed", zap.Error(err))
	}
}
