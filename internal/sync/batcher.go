package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// PendingStore is the checkpoint's view of the delivery queues.
type PendingStore interface {
	PendingBalancer() []string
	RemoveBalancer(keys []string)
	PendingGPTLoad() []string
	RemoveGPTLoad(keys []string)
	Save() error
}

type Pusher interface {
	Push(ctx context.Context, keys []string) (map[string]string, error)
}

type SendLogger interface {
	AppendSendResults(results map[string]string) error
}

// Batcher drains the pending-delivery sets on a fixed cadence, running in
// its own flow next to the crawl. A single-flight guard keeps overlapping
// ticks from submitting the same pending set twice.
type Batcher struct {
	store    PendingStore
	balancer Pusher
	gptLoad  Pusher
	sendLog  SendLogger
	interval time.Duration

	inFlight atomic.Bool
}

func NewBatcher(store PendingStore, balancer, gptLoad Pusher, sendLog SendLogger, interval time.Duration) *Batcher {
	return &Batcher{
		store:    store,
		balancer: balancer,
		gptLoad:  gptLoad,
		sendLog:  sendLog,
		interval: interval,
	}
}

// Run flushes until the context is cancelled.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}

// Flush pushes each channel's pending set. Keys leave the queue only after a
// successful push; keys queued while a push is in flight stay for the next
// batch.
func (b *Batcher) Flush(ctx context.Context) {
	if !b.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer b.inFlight.Store(false)

	changed := false
	changed = b.flushChannel(ctx, "balancer", b.balancer, b.store.PendingBalancer, b.store.RemoveBalancer) || changed
	changed = b.flushChannel(ctx, "gpt_load", b.gptLoad, b.store.PendingGPTLoad, b.store.RemoveGPTLoad) || changed

	if changed {
		if err := b.store.Save(); err != nil {
			slog.WarnContext(ctx, "checkpoint save failed after sync", "error", err)
		}
	}
}

func (b *Batcher) flushChannel(ctx context.Context, name string, pusher Pusher, pending func() []string, remove func([]string)) bool {
	if pusher == nil {
		return false
	}
	keys := pending()
	if len(keys) == 0 {
		return false
	}

	results, err := pusher.Push(ctx, keys)
	if err != nil {
		slog.WarnContext(ctx, "sync push failed, keys stay queued", "channel", name, "keys", len(keys), "error", err)
		return false
	}

	remove(keys)
	slog.InfoContext(ctx, "sync push complete", "channel", name, "keys", len(keys))

	if b.sendLog != nil && len(results) > 0 {
		if err := b.sendLog.AppendSendResults(results); err != nil {
			slog.WarnContext(ctx, "send log append failed", "channel", name, "error", err)
		}
	}
	return true
}
