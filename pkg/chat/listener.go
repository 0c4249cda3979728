package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Listener drives the Matrix sync loop: long-poll, skip bot-originated
// events, hand typed events to the router. Sync failures back off
// exponentially and reset on the first successful batch.
type Listener struct {
	client       *MatrixClient
	router       *Router
	syncTimeout  time.Duration
	pollInterval time.Duration
	logger       *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ListenerConfig configures the sync loop.
type ListenerConfig struct {
	SyncTimeout  time.Duration
	PollInterval time.Duration
}

// NewListener creates a listener over the given client and router.
func NewListener(client *MatrixClient, router *Router, cfg ListenerConfig) *Listener {
	syncTimeout := cfg.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = 30 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Listener{
		client:       client,
		router:       router,
		syncTimeout:  syncTimeout,
		pollInterval: pollInterval,
		logger:       slog.Default().With("component", "chat-listener"),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the sync loop in a goroutine.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the listener to stop and waits for it to finish.
// Safe to call multiple times.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *Listener) run(ctx context.Context) {
	defer l.wg.Done()
	l.logger.Info("Chat listener started")

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0 // keep reconnecting for the process lifetime

	// The first sync establishes the since token; its backlog is skipped so
	// a restart does not replay history already absorbed by the journal's
	// uniqueness constraints.
	since := ""

	for {
		select {
		case <-l.stopCh:
			l.logger.Info("Chat listener shutting down")
			return
		case <-ctx.Done():
			l.logger.Info("Context cancelled, chat listener shutting down")
			return
		default:
		}

		batch, err := l.client.SyncOnce(ctx, since, l.syncTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := retry.NextBackOff()
			l.logger.Error("Sync failed, backing off", "error", err, "wait", wait)
			l.sleep(wait)
			continue
		}
		retry.Reset()

		first := since == ""
		since = batch.NextBatch
		if first {
			continue
		}

		for _, raw := range batch.Messages {
			if raw.Sender == l.client.BotUserID() {
				continue
			}
			ev := parseEvent(raw)
			if ev == nil {
				continue
			}
			l.router.Route(ctx, ev)
		}

		l.sleep(l.pollInterval)
	}
}

// sleep waits for the given duration or until stop is signalled.
func (l *Listener) sleep(d time.Duration) {
	select {
	case <-l.stopCh:
	case <-time.After(d):
	}
}
