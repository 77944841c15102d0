package session

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically deletes expired records and revoked records older than
// Config.RevokedRetention. Correctness never depends on it running.
type Reaper struct {
	svc      *Service
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewReaper returns a Reaper for svc. A nil now defaults to time.Now.
func NewReaper(svc *Service, now func() time.Time) *Reaper {
	if now == nil {
		now = time.Now
	}
	interval := svc.cfg.ReapInterval
	if interval <= 0 {
		interval = DefaultConfig().ReapInterval
	}
	return &Reaper{svc: svc, interval: interval, now: now, log: svc.log}
}

// Sweep runs one reaping pass.
func (r *Reaper) Sweep(ctx context.Context) (expired, revoked int64, err error) {
	now := r.now().UTC()

	expired, err = r.svc.ReapExpired(ctx, now)
	if err != nil {
		return 0, 0, err
	}

	retention := r.svc.cfg.RevokedRetention
	if retention <= 0 {
		return expired, 0, nil
	}
	revoked, err = r.svc.ReapOldRevoked(ctx, now.Add(-retention))
	if err != nil {
		return expired, 0, err
	}
	return expired, revoked, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.Info("reaper.start", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper.stop")
			return
		case <-t.C:
			expired, revoked, err := r.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Error("reaper.sweep.fail", "err", err)
				continue
			}
			if expired > 0 || revoked > 0 {
				r.log.Info("reaper.sweep", "expired", expired, "revoked", revoked)
			}
		}
	}
}
