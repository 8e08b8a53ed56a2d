package metadata

import (
	"context"
	"log/slog"
	"time"
)

// Refresher reruns a service's refresh on a fixed interval. Each run
// contends for the shared serializer slot like any other pipeline, so
// a long user query simply delays the refresh; there is no preemption.
type Refresher struct {
	service *Service
	log     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher creates a stopped refresher for service.
func NewRefresher(service *Service, log *slog.Logger) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{service: service, log: log}
}

// Start launches the background refresh loop. The loop stops when
// Close is called.
func (r *Refresher) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.service.Refresh(ctx); err != nil {
					r.log.Error("background metadata refresh", "err", err)
				}
			}
		}
	}()
}

// Close stops the refresh loop and waits for it to exit. Safe to call
// even if Start was never called.
func (r *Refresher) Close() error {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	return nil
}
