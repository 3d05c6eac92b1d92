package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flicky/casa-storefront/internal/authclient"
)

// SessionRefresher renews the access token shortly before it expires so
// row-store calls keep carrying a valid bearer.
type SessionRefresher struct {
	client   authclient.Client
	interval time.Duration
	margin   time.Duration
	log      *slog.Logger
	now      func() time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSessionRefresher(client authclient.Client, interval, margin time.Duration, log *slog.Logger) *SessionRefresher {
	return &SessionRefresher{
		client:   client,
		interval: interval,
		margin:   margin,
		log:      log,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (w *SessionRefresher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.refreshIfDue(ctx)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("session refresher started", "interval", w.interval, "margin", w.margin)
}

// Stop waits for an in-flight refresh to finish.
func (w *SessionRefresher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *SessionRefresher) refreshIfDue(ctx context.Context) {
	sess := w.client.Session()
	if sess == nil || !sess.ExpiresWithin(w.now(), w.margin) {
		return
	}

	log := w.log.With("user_id", sess.User.ID)
	refreshed, err := w.client.RefreshSession(ctx)
	if errors.Is(err, authclient.ErrSessionReplaced) {
		log.Info("session changed during refresh")
		return
	}
	if err != nil {
		log.Error("refresh session", "error", err)
		return
	}
	if refreshed == nil {
		log.Info("session revoked during refresh")
		return
	}
	log.Info("session refreshed", "expires_at", refreshed.ExpiresAt)
}
