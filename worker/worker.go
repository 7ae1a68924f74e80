// Package worker drains the asynchronous review queue.
package worker

import (
	"context"
	"time"

	"github.com/hupe1980/reviewmesh"
	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/logging"
	"github.com/hupe1980/reviewmesh/notify"
)

// Reviewer produces commit reviews.
type Reviewer interface {
	ReviewCommits(ctx context.Context, hashes []string, modelID string) (reviewmesh.CommitReview, error)
}

// Queue is a review store that can list and watch queued hashes.
type Queue interface {
	core.ReviewStore
	Pending() ([]string, error)
	Watch(ctx context.Context) (<-chan string, error)
}

// Options configures a Worker.
type Options struct {
	// ModelID overrides the review model.
	ModelID string
	// Notifier announces finished reviews (defaults to notify.Nop).
	Notifier notify.Notifier
	// Watch keeps Run going, reacting to newly queued hashes.
	Watch bool
	// PollInterval rescans the queue while watching, picking up markers whose
	// events were missed and retrying failures.
	PollInterval time.Duration
	Logger       logging.Logger
}

// Worker reviews queued commits one at a time.
type Worker struct {
	reviewer Reviewer
	queue    Queue
	opts     Options
}

// Stats summarizes a pass over the queue.
type Stats struct {
	Reviewed int `json:"reviewed"`
	Failed   int `json:"failed"`
}

// DefaultPollInterval is used when Options.PollInterval is not positive.
const DefaultPollInterval = time.Minute

// New creates a Worker.
func New(reviewer Reviewer, queue Queue, optFns ...func(o *Options)) *Worker {
	opts := Options{
		Notifier:     notify.Nop{},
		PollInterval: DefaultPollInterval,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Worker{reviewer: reviewer, queue: queue, opts: opts}
}

// RunOnce reviews every currently queued hash, oldest first. A failing commit
// is logged and stays queued.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	pending, err := w.queue.Pending()
	if err != nil {
		return stats, err
	}
	for _, hash := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if w.process(ctx, hash) {
			stats.Reviewed++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

// Run drains the queue. With Watch set it keeps running until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if !w.opts.Watch {
		stats, err := w.RunOnce(ctx)
		w.opts.Logger.Info("review queue drained", "reviewed", stats.Reviewed, "failed", stats.Failed)
		return err
	}

	events, err := w.queue.Watch(ctx)
	if err != nil {
		return err
	}
	// wait for the watcher to shut down before returning
	defer func() {
		for range events {
		}
	}()

	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.opts.Logger.Error("review pass failed", "error", err)
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case hash, ok := <-events:
			if !ok {
				return nil
			}
			queued, err := w.queue.IsQueued(ctx, hash)
			if err != nil {
				w.opts.Logger.Error("queue lookup failed", "hash", hash, "error", err)
				continue
			}
			if queued {
				w.process(ctx, hash)
			}
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.opts.Logger.Error("review pass failed", "error", err)
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, hash string) bool {
	start := time.Now()
	review, err := w.reviewer.ReviewCommits(ctx, []string{hash}, w.opts.ModelID)
	if err != nil {
		w.opts.Logger.Error("review failed", "hash", hash, "error", err, "kind", string(core.KindOf(err)))
		return false
	}
	if err := w.queue.SaveResult(ctx, hash, review.Review); err != nil {
		w.opts.Logger.Error("saving review failed", "hash", hash, "error", err)
		return false
	}
	w.opts.Logger.Info("review completed", "hash", hash, "model", review.ModelID, "duration_ms", time.Since(start).Milliseconds())

	if len(review.Commits) > 0 {
		if err := w.opts.Notifier.NotifyReview(ctx, review.Commits[0], review.Review); err != nil {
			w.opts.Logger.Warn("review notification failed", "hash", hash, "error", err)
		}
	}
	return true
}
