package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default polling cadence for long-running imports.
const (
	DefaultPollInterval = 2 * time.Second
)

// ErrPollTimeout is returned when an operation is still running after the
// poller's timeout.
var ErrPollTimeout = errors.New("docstore: timed out waiting for operation")

// PollState is the state of one operation being driven to completion.
type PollState int

// Poll states. Pending is the state of a freshly returned handle; Done and
// Failed are terminal.
const (
	PollPending PollState = iota
	PollPolling
	PollDone
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollPolling:
		return "polling"
	case PollDone:
		return "done"
	case PollFailed:
		return "failed"
	default:
		return fmt.Sprintf("PollState(%d)", int(s))
	}
}

// OperationGetter refreshes an operation by name. Satisfied by *Client.
type OperationGetter interface {
	GetOperation(ctx context.Context, name string) (*Operation, error)
}

// Scheduler runs fn after d. Implementations may block (SleepScheduler) or
// return immediately and fire later (TimerScheduler). The returned cancel
// func stops a pending fire; it is safe to call after fn ran.
type Scheduler interface {
	Schedule(ctx context.Context, d time.Duration, fn func()) (cancel func())
}

// SleepScheduler blocks the caller for d, then runs fn. If ctx ends first,
// fn is not run.
type SleepScheduler struct{}

// Schedule implements Scheduler.
func (SleepScheduler) Schedule(ctx context.Context, d time.Duration, fn func()) func() {
	if err := timeSleep(ctx, d); err == nil {
		fn()
	}

	return func() {}
}

// TimerScheduler fires fn on its own goroutine via time.AfterFunc.
type TimerScheduler struct{}

// Schedule implements Scheduler.
func (TimerScheduler) Schedule(_ context.Context, d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Poller drives an Operation from Pending to Done or Failed, re-reading it
// at a constant interval.
type Poller struct {
	getter    OperationGetter
	interval  time.Duration
	timeout   time.Duration // zero means no limit
	scheduler Scheduler
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewPoller creates a poller using the blocking SleepScheduler.
func NewPoller(getter OperationGetter, interval, timeout time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		getter:    getter,
		interval:  interval,
		timeout:   timeout,
		scheduler: SleepScheduler{},
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// WithScheduler swaps the scheduler and returns the poller.
func (p *Poller) WithScheduler(s Scheduler) *Poller {
	p.scheduler = s
	return p
}

// Wait polls op until it finishes. A failed import returns the final
// operation together with an error wrapping ErrOperationFailed.
func (p *Poller) Wait(ctx context.Context, op *Operation) (*Operation, error) {
	var deadline time.Time
	if p.timeout > 0 {
		deadline = p.nowFunc().Add(p.timeout)
	}

	state := PollPending
	polls := 0

	for {
		switch state {
		case PollPending:
			state = terminalOr(op, PollPolling)

		case PollPolling:
			if err := p.tick(ctx); err != nil {
				return op, err
			}

			if !deadline.IsZero() && p.nowFunc().After(deadline) {
				return op, fmt.Errorf("%w: %s after %d polls", ErrPollTimeout, op.Name, polls)
			}

			next, err := p.getter.GetOperation(ctx, op.Name)
			if err != nil {
				return op, fmt.Errorf("docstore: polling %s: %w", op.Name, err)
			}

			polls++
			op = next
			state = terminalOr(op, PollPolling)

		case PollDone:
			p.logger.Debug("operation done",
				slog.String("operation", op.Name),
				slog.String("document_id", op.DocumentID),
				slog.Int("polls", polls),
			)

			return op, nil

		case PollFailed:
			if op.Err == nil {
				op.Err = ErrOperationFailed
			}

			return op, op.Err
		}
	}
}

// tick waits one interval through the scheduler.
func (p *Poller) tick(ctx context.Context) error {
	fired := make(chan struct{})
	cancel := p.scheduler.Schedule(ctx, p.interval, func() { close(fired) })
	defer cancel()

	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("docstore: polling canceled: %w", ctx.Err())
	}
}

func terminalOr(op *Operation, otherwise PollState) PollState {
	switch {
	case op.Done && op.Err != nil:
		return PollFailed
	case op.Done:
		return PollDone
	default:
		return otherwise
	}
}
