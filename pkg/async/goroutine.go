package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo runs fn in a goroutine with a timeout. Errors and panics are
// logged, never propagated. The returned channel closes when fn returns.
//
// The goroutine's context is detached from parentCtx's cancellation so a
// finished HTTP request does not abort the task; values are kept.
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
	}()
	return done
}

// Batch calls fn for every item using at most workers goroutines, each
// call bounded by timeout. It returns once all items are processed, with
// the errors (and recovered panics) in no particular order. Items not yet
// started when ctx is cancelled are skipped with ctx.Err().
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration, fn func(context.Context, T) error) []error {
	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	sem := make(chan struct{}, workers)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			record(err)
			continue
		}
		select {
		case <-ctx.Done():
			record(ctx.Err())
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("panic: %v", r))
				}
			}()

			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := fn(taskCtx, item); err != nil {
				record(err)
			}
		}(item)
	}
	wg.Wait()

	return errs
}
