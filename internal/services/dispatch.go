package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher runs best-effort side effects (audit entries, category learning)
// whose failure must never fail the transition that triggered them.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// InlineDispatcher runs side effects synchronously and only logs failures.
type InlineDispatcher struct {
	Logger zerolog.Logger
}

func (d InlineDispatcher) Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if err := runSideEffect(ctx, fn); err != nil {
		d.Logger.Warn().Err(err).Str("side_effect", name).Msg("side effect failed")
	}
}

// AsyncDispatcher runs side effects on their own goroutine, detached from the
// request context and bounded by timeout.
type AsyncDispatcher struct {
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncDispatcher creates a fire-and-forget dispatcher
func NewAsyncDispatcher(logger zerolog.Logger, timeout time.Duration) *AsyncDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncDispatcher{logger: logger, timeout: timeout}
}

func (d *AsyncDispatcher) Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := runSideEffect(ctx, fn); err != nil {
			d.logger.Warn().Err(err).Str("side_effect", name).Msg("side effect failed")
		}
	}()
}

// Wait blocks until every dispatched side effect has returned.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

func runSideEffect(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
