package signaling

import (
	"context"
	"log/slog"
	"time"

	"github.com/beamdrop/signal-relay/internal/metrics"
	"github.com/beamdrop/signal-relay/internal/session"
)

// Reaper evicts sessions older than the configured lifetime. It runs on
// a fixed interval, independent of inbound events; removals go through
// the same store critical sections as the event handlers, so a session
// racing with an event is handled by exactly one of them.
type Reaper struct {
	log     *slog.Logger
	store   *session.Store
	sender  Sender
	clock   session.Clock
	metrics *metrics.Metrics

	interval time.Duration
	lifetime time.Duration
}

func NewReaper(logger *slog.Logger, store *session.Store, sender Sender, clock session.Clock, m *metrics.Metrics, interval, lifetime time.Duration) *Reaper {
	if clock == nil {
		clock = wallClock{}
	}
	return &Reaper{
		log:      logger,
		store:    store,
		sender:   sender,
		clock:    clock,
		metrics:  m,
		interval: interval,
		lifetime: lifetime,
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep removes every session older than the lifetime and notifies any
// still-tracked participants. Each session is handled independently; a
// session that disappears between snapshot and removal is skipped.
func (r *Reaper) Sweep() {
	now := r.clock.Now()
	for _, exp := range r.store.Expired(now, r.lifetime) {
		sess, err := r.store.Remove(exp.ID)
		if err != nil {
			continue
		}
		r.metrics.Inc(metrics.SessionsExpired)
		r.log.Info("session expired", "session_id", exp.ID,
			"age", now.Sub(sess.CreatedAt).Round(time.Second).String())

		payload := sessionExpiredPayload{SessionID: exp.ID}
		r.sender.Send(sess.SenderID, EventSessionExpired, payload)
		if sess.ReceiverID != "" {
			r.sender.Send(sess.ReceiverID, EventSessionExpired, payload)
		}
		r.sender.RemoveGroup(groupName(exp.ID))
	}
}
