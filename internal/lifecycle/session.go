package lifecycle

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"llmedged/internal/engine"
	"llmedged/pkg/types"
)

// Cancellation flag states. The flag only ever moves forward:
// none -> requested -> acknowledged.
const (
	cancelNone int32 = iota
	cancelRequested
	cancelAcknowledged
)

// Progress is one step report from the native engine.
type Progress struct {
	Step  int
	Total int
}

// Session is the transient state of one generation call: the tri-state
// cancellation flag and the progress plumbing. Created per call, destroyed
// when the call returns; never shared across calls.
type Session struct {
	ID     string
	Family types.Family

	flag       atomic.Int32
	cancelOnce sync.Once
	handle     engine.Handle

	progressCh chan Progress
	done       chan struct{}
	drained    sync.WaitGroup
}

// progressBuffer bounds how many undelivered reports a session holds. The
// native goroutine never blocks on delivery; old reports are dropped in
// favor of new ones.
const progressBuffer = 8

func newSession(family types.Family, handle engine.Handle) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Family:     family,
		handle:     handle,
		progressCh: make(chan Progress, progressBuffer),
		done:       make(chan struct{}),
	}
}

// RequestCancel flips the flag to requested and forwards the best-effort
// native cancel signal exactly once. Non-blocking for the caller.
func (s *Session) RequestCancel() {
	if s.flag.CompareAndSwap(cancelNone, cancelRequested) {
		s.cancelOnce.Do(func() {
			if s.handle != nil {
				s.handle.Cancel()
			}
		})
	}
}

// CancelRequested reports whether cancellation has been requested (in either
// the requested or acknowledged state).
func (s *Session) CancelRequested() bool { return s.flag.Load() >= cancelRequested }

// acknowledgeCancel records that the generation path observed the flag.
func (s *Session) acknowledgeCancel() {
	s.flag.CompareAndSwap(cancelRequested, cancelAcknowledged)
}

// sink returns the ProgressSink handed to the native call. It drops the
// oldest undelivered report rather than block the native goroutine.
func (s *Session) sink() engine.ProgressSink {
	return func(step, total int) {
		p := Progress{Step: step, Total: total}
		for {
			select {
			case s.progressCh <- p:
				return
			default:
			}
			select {
			case <-s.progressCh:
			default:
			}
		}
	}
}

// forward drains progress reports to fn on a dedicated goroutine until the
// session finishes, so callbacks observe whatever thread discipline the
// caller needs without holding up the engine.
func (s *Session) forward(fn func(Progress)) {
	if fn == nil {
		return
	}
	s.drained.Add(1)
	go func() {
		defer s.drained.Done()
		for {
			select {
			case p := <-s.progressCh:
				fn(p)
			case <-s.done:
				// Flush anything still buffered.
				for {
					select {
					case p := <-s.progressCh:
						fn(p)
					default:
						return
					}
				}
			}
		}
	}()
}

// finish stops progress forwarding and waits for the drain goroutine.
func (s *Session) finish() {
	close(s.done)
	s.drained.Wait()
}
