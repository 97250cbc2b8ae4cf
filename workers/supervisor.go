package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"carechat/contract"
	"carechat/errors"
)

// Supervisor runs each worker in a goroutine, recovers panics, restarts
// failed workers after a delay, and waits for all of them on shutdown.
// A failure in one worker must not stop the supervisor itself.
type Supervisor struct {
	wg              *sync.WaitGroup
	log             *slog.Logger
	restartInterval time.Duration
	workers         []contract.Worker
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log, restartInterval: restartInterval}
}

func (s *Supervisor) Add(worker ...contract.Worker) *Supervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every registered worker and blocks until all of them have
// returned after ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for _, worker := range s.workers {
		s.start(ctx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := fmt.Sprintf("%T", worker)

	go func() {
		defer s.wg.Done()
		for {
			if ctx.Err() != nil {
				s.log.Info("Stopping worker", "worker", name)
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart.
				s.log.Info("Worker finished", "worker", name)
				return
			}

			s.log.Error("Worker failed, restarting", "worker", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartInterval):
			}
		}
	}()
}
