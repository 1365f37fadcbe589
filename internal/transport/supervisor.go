package transport

import (
	stderrors "errors"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/lspipe/internal/errors"
)

// Worker names reported in outcomes and logs.
const (
	WorkerStderrMonitor = "stderr_monitor"
	WorkerReader        = "reader"
	WorkerWriter        = "writer"
)

// Outcome is how a single transport worker ended. Err is nil when the worker
// stopped normally.
type Outcome struct {
	Worker string
	Err    error
}

type worker struct {
	name string
	run  func() error
}

// supervisor runs the transport workers and records how each one ended.
// Worker failures, panics included, are logged and recorded, never
// propagated to the caller's goroutine.
type supervisor struct {
	log      *slog.Logger
	group    errgroup.Group
	outcomes []Outcome
	done     chan struct{}
}

func supervise(log *slog.Logger, workers ...worker) *supervisor {
	s := &supervisor{
		log:      log.With("component", "supervisor"),
		outcomes: make([]Outcome, len(workers)),
		done:     make(chan struct{}),
	}

	for i, w := range workers {
		s.outcomes[i].Worker = w.name

		s.group.Go(func() error {
			err := runGuarded(w)
			s.outcomes[i].Err = err

			if err != nil {
				s.log.Error("Transport worker failed", "worker", w.name, "error", err)
			} else {
				s.log.Debug("Transport worker stopped", "worker", w.name)
			}

			return err
		})
	}

	go func() {
		defer close(s.done)

		// Outcomes carry every failure; the group's first error adds nothing.
		_ = s.group.Wait()

		s.log.Info("Transport stopped")
	}()

	return s
}

// runGuarded runs w, turning a panic into a *errors.WorkerPanicError.
func runGuarded(w worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errors.WorkerPanicError{Worker: w.name, Value: r}
		}
	}()

	return w.run()
}

// Done is closed once every worker has stopped.
func (s *supervisor) Done() <-chan struct{} {
	return s.done
}

// Outcomes waits for all workers and returns one outcome per worker.
func (s *supervisor) Outcomes() []Outcome {
	<-s.done

	return slices.Clone(s.outcomes)
}

// Err waits for all workers and joins their failures.
func (s *supervisor) Err() error {
	var errs []error

	for _, o := range s.Outcomes() {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}

	return stderrors.Join(errs...)
}
