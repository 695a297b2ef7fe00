package main

import (
	"context"
	"time"

	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

type Expirer interface {
	ExpireHolds(ctx context.Context, now time.Time) (int, error)
}

// ExpiryWorker reclaims holds whose guests never came back: the server side
// half of the 10 minute hold.
type ExpiryWorker struct {
	svc    Expirer
	logger observability.Logger
	now    func() time.Time
}

func NewExpiryWorker(svc Expirer, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{svc: svc, logger: logger, now: time.Now}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	n, err := w.svc.ExpireHolds(ctx, w.now())
	if err != nil {
		if ctx.Err() == nil {
			w.logger.WithError(err).Error("expiry sweep failed")
		}
		return n
	}
	if n > 0 {
		w.logger.WithField("expired", n).Info("expired abandoned holds")
	}
	return n
}
