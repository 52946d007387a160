package core

import (
	"sync"

	"go.uber.org/zap"

	"vetchat/pkg/logging"
)

// Runner executes detached background tasks. Tasks are never joined by the
// request that submits them; Wait is for shutdown and tests.
type Runner struct {
	wg     sync.WaitGroup
	logger *logging.Logger
}

func NewRunner(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{logger: logger}
}

// Go runs fn in its own goroutine. A panic is logged and absorbed.
func (r *Runner) Go(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked", zap.String("task", name), zap.Any("panic", rec))
			}
		}()
		fn()
	}()
}

// Wait blocks until every submitted task has returned.
func (r *Runner) Wait() { r.wg.Wait() }
