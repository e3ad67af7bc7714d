// Package engine keeps post scores, user scores, like counts and like-sets
// consistent and ranks users by score.
package engine

import (
	"context"
	"log/slog"
	"time"

	"fresh-hub/internal/database"
	"fresh-hub/internal/utils"
)

const (
	// PostCreationBonus is awarded to a new post and to its author.
	PostCreationBonus = 5
	// LikeAward is awarded to a post and its author when the post gains a like.
	LikeAward = 1
	// LeaderboardSize is the number of users returned by Leaderboard.
	LeaderboardSize = 20
	// Unranked is the rank reported for a user missing from the ranking.
	Unranked = 0

	defaultCommitTimeout = 10 * time.Second
)

type Engine struct {
	store   database.Store
	logger  *slog.Logger
	metrics *utils.MetricsCollector
	now     func() time.Time

	commitTimeout time.Duration
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(metrics *utils.MetricsCollector) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithClock overrides the time source used for post timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCommitTimeout bounds the writes of an operation once it has started.
func WithCommitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.commitTimeout = d
	}
}

func New(store database.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		logger:        utils.DiscardLogger(),
		now:           time.Now,
		commitTimeout: defaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the underlying entity store.
func (e *Engine) Store() database.Store {
	return e.store
}

func (e *Engine) observe(operation string, start time.Time) {
	if e.metrics != nil {
		e.metrics.AddOperationLatency(operation, time.Since(start))
	}
}

// commit is the last point at which an operation may be refused. It fails
// with DEADLINE_EXCEEDED when ctx is already done. Otherwise the returned
// context is detached from ctx, so the caller's deadline cannot stop the
// operation between two of its writes.
func (e *Engine) commit(ctx context.Context, operation string) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, utils.NewDeadlineError(operation, err)
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.commitTimeout)
	return wctx, cancel, nil
}
