// Package parallel runs independent sub-tasks on a bounded set of goroutines
// and reports the first failure once every task has finished.
//
// Unlike errgroup.WithContext, a failing task does not cancel its siblings:
// purge tasks hold bucket locks and must each run to completion so that no
// bucket is left mid-mutation.
package parallel

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Group is a bounded task group. The zero value is not usable; use New.
type Group struct {
	g      errgroup.Group
	logger *zap.Logger
}

// New creates a group running at most limit tasks at once.
// limit <= 0 uses runtime.GOMAXPROCS(0).
func New(limit int, logger *zap.Logger) *Group {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Group{logger: logger}
	g.g.SetLimit(limit)
	return g
}

// Go submits fn, blocking while limit tasks are already running.
// A panic inside fn is recovered and reported as the task's error.
func (g *Group) Go(fn func() error) {
	g.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("parallel task panicked",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = fmt.Errorf("parallel: task panicked: %v", r)
			}
		}()
		if err := fn(); err != nil {
			g.logger.Warn("parallel task failed", zap.Error(err))
			return err
		}
		return nil
	})
}

// Wait blocks until every submitted task has returned and then returns the
// first error, if any.
func (g *Group) Wait() error {
	return g.g.Wait()
}
