package notification

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepInterval = 30 * time.Second

// AckBackfiller recreates acknowledgment records whose persist failed during
// the claim. Implemented by the alert service.
type AckBackfiller interface {
	DispatchMissedAcks(ctx context.Context) error
}

// Sweeper periodically backfills missing acknowledgments and retries delivery
// of undelivered ones. It is what makes the acknowledgment path
// durable-then-deliver rather than fire-and-forget.
type Sweeper struct {
	service *Service
	acks    AckBackfiller
	logger  *zap.Logger
}

// NewSweeper creates the redelivery sweeper.
func NewSweeper(service *Service, acks AckBackfiller, logger *zap.Logger) *Sweeper {
	return &Sweeper{service: service, acks: acks, logger: logger}
}

// Start runs the background goroutine that sweeps on a timer.
func (s *Sweeper) Start(lc fx.Lifecycle) {
	ticker := time.NewTicker(sweepInterval)
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.logger.Info("starting notification redelivery sweeper",
				zap.Duration("interval", sweepInterval))
			go func() {
				sweepCtx := context.Background()
				for {
					select {
					case <-ticker.C:
						if err := s.acks.DispatchMissedAcks(sweepCtx); err != nil {
							s.logger.Warn("acknowledgment backfill failed", zap.Error(err))
						}
						s.service.SweepUndelivered(sweepCtx)
					case <-done:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.logger.Info("stopping notification redelivery sweeper")
			ticker.Stop()
			close(done)
			return nil
		},
	})
}
