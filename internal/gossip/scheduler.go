package gossip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"gossipnode/internal/protocol"
)

const (
	DefaultInterval    = 200 * time.Millisecond
	DefaultQueueSize   = 64
	DefaultJoinTimeout = time.Second
)

// Source yields decoded input messages. Next returns io.EOF once input is
// exhausted; any other error ends input as a failure.
type Source interface {
	Next() (protocol.Message, error)
}

// Scheduler feeds the control loop from an input producer and a tick
// producer through one FIFO queue.
type Scheduler struct {
	source   Source
	interval time.Duration
	events   chan Event
	logger   *zap.Logger

	// Control
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	mu      sync.Mutex
	running map[string]chan struct{}
	errs    error
}

// NewScheduler creates a scheduler. Non-positive interval or queueSize fall
// back to the defaults.
func NewScheduler(source Source, interval time.Duration, queueSize int, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		source:   source,
		interval: interval,
		events:   make(chan Event, queueSize),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		running:  make(map[string]chan struct{}),
	}
}

// Events returns the queue consumed by the control loop.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start launches both producers. Calling it again has no effect.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.spawn("input", s.readInput, func(err error) {
			// The control loop is waiting for end of input; give it the cause.
			s.emit(Event{Kind: EndOfInput, Err: err})
		})
		s.spawn("ticker", s.tick, nil)
	})
}

// Stop asks the producers to exit and waits up to timeout for them.
// A producer still blocked after the timeout (typically in a read) is
// abandoned and only logged. The returned error aggregates producer panics.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.stopOnce.Do(func() {
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-done:
			s.logger.Debug("producers stopped")
		case <-timer.C:
			s.logger.Warn("abandoning producers that did not stop in time",
				zap.Strings("producers", s.stillRunning()),
				zap.Duration("timeout", timeout))
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}

// spawn runs fn on its own goroutine, converting a panic into a recorded
// error passed to onPanic.
func (s *Scheduler) spawn(name string, fn func(), onPanic func(error)) {
	done := make(chan struct{})
	s.mu.Lock()
	s.running[name] = done
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%s producer panicked: %v", name, r)
				s.logger.Error("producer panicked", zap.String("producer", name), zap.Any("panic", r))
				s.record(err)
				if onPanic != nil {
					onPanic(err)
				}
			}
		}()
		fn()
	}()
}

// readInput forwards decoded messages in input order and finishes with
// exactly one EndOfInput.
func (s *Scheduler) readInput() {
	for {
		msg, err := s.source.Next()
		if err != nil {
			ev := Event{Kind: EndOfInput}
			if !errors.Is(err, io.EOF) {
				ev.Err = err
			}
			s.emit(ev)
			return
		}
		if !s.emit(Event{Kind: External, Message: msg}) {
			return
		}
	}
}

// tick emits a GossipTick every interval until stopped.
func (s *Scheduler) tick() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.emit(Event{Kind: GossipTick}) {
				return
			}
		}
	}
}

// emit enqueues ev unless the scheduler is stopping.
func (s *Scheduler) emit(ev Event) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Scheduler) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = multierr.Append(s.errs, err)
}

func (s *Scheduler) stillRunning() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.running))
	for name, done := range s.running {
		select {
		case <-done:
		default:
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
