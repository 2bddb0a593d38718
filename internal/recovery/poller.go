// Package recovery implements stop-detection and recovery: after a
// pause/step/continue, detect that the target actually halted even when
// the rv32sim remote stub fails to emit the expected MI *stopped record.
// A single poll runs at a time; a caller that arrives while one is
// already in flight joins it rather than starting a second.
package recovery

import (
	"context"
	"sync"
	"time"
)

// Sender is the subset of *mi.Pipeline the poller needs. Kept as an
// interface so the escalation ladder can be tested without a real GDB.
type Sender interface {
	Send(ctx context.Context, command string, timeout time.Duration) (map[string]interface{}, error)
}

// Interrupter writes a single Ctrl-C byte directly to GDB's stdin. It is
// never a process signal: sending GDB a signal instead of a Ctrl-C byte
// on its stdin corrupts the MI channel.
type Interrupter func() error

const (
	pollInterval  = 100 * time.Millisecond
	probeDeadline = 2 * time.Second
	escalationRounds = 3
)

// Outcome is the result of a completed poll.
type Outcome struct {
	Stopped   bool
	Synthetic bool
	Reason    string
}

type inflight struct {
	realStop chan struct{}
	once     sync.Once
	finished chan struct{}
	result   Outcome
}

func (f *inflight) signalRealStop() {
	f.once.Do(func() { close(f.realStop) })
}

// Poller runs the recovery protocol: sleep/probe loop until deadline,
// then up to three interrupt-escalation rounds, finally a synthetic
// stop. Single-flight: a second Await call for the same transition
// joins the poll already running instead of starting a new one.
type Poller struct {
	send      Sender
	interrupt Interrupter

	mu     sync.Mutex
	active *inflight
}

// New wires a poller over a Sender (normally *mi.Pipeline) and an
// Interrupter that writes Ctrl-C to GDB's stdin for the hard-path
// escalation step.
func New(send Sender, interrupt Interrupter) *Poller {
	return &Poller{send: send, interrupt: interrupt}
}

// NotifyRealStop tells an in-flight poll that a genuine MI *stopped/
// =stopped record has arrived, short-circuiting the poll loop. It is a
// no-op if no poll is active.
func (p *Poller) NotifyRealStop() {
	p.mu.Lock()
	f := p.active
	p.mu.Unlock()
	if f != nil {
		f.signalRealStop()
	}
}

// Await runs (or joins) the recovery protocol for the caller's deadline
// (3s step, 2s pause, 30s continue) and returns once the target is
// believed stopped — either because a real *stopped arrived, a
// -thread-info probe observed a non-running thread, or every escalation
// round failed and the result is synthetic.
func (p *Poller) Await(ctx context.Context, deadline time.Duration) Outcome {
	p.mu.Lock()
	if p.active != nil {
		f := p.active
		p.mu.Unlock()
		<-f.finished
		return f.result
	}
	f := &inflight{realStop: make(chan struct{}), finished: make(chan struct{})}
	p.active = f
	p.mu.Unlock()

	f.result = p.run(ctx, f, deadline)
	close(f.finished)

	p.mu.Lock()
	if p.active == f {
		p.active = nil
	}
	p.mu.Unlock()

	return f.result
}

func (p *Poller) run(ctx context.Context, f *inflight, deadline time.Duration) Outcome {
	deadlineAt := time.Now().Add(deadline)

	for time.Now().Before(deadlineAt) {
		if out, ok := p.waitOrProbe(ctx, f, pollInterval); ok {
			return out
		}
	}

	for round := 0; round < escalationRounds; round++ {
		_, _ = p.send.Send(ctx, "-exec-interrupt", probeDeadline)
		if p.interrupt != nil {
			_ = p.interrupt()
		}
		if out, ok := p.waitOrProbe(ctx, f, probeDeadline); ok {
			return out
		}
	}

	return Outcome{Stopped: true, Synthetic: true, Reason: "pause"}
}

// waitOrProbe sleeps (or returns immediately on a real stop signal), then
// issues one -thread-info probe and reports whether the target is known
// stopped.
func (p *Poller) waitOrProbe(ctx context.Context, f *inflight, window time.Duration) (Outcome, bool) {
	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case <-f.realStop:
		return Outcome{Stopped: true}, true
	case <-ctx.Done():
		return Outcome{Stopped: true, Synthetic: true, Reason: "pause"}, true
	case <-timer.C:
	}

	results, err := p.send.Send(ctx, "-thread-info", probeDeadline)
	if err != nil {
		return Outcome{}, false
	}
	if threadRunning(results) {
		return Outcome{}, false
	}
	return Outcome{Stopped: true, Reason: "pause"}, true
}

// threadRunning inspects a -thread-info reply's first thread's state.
func threadRunning(results map[string]interface{}) bool {
	threads, ok := results["threads"].([]interface{})
	if !ok || len(threads) == 0 {
		return true
	}
	first, ok := threads[0].(map[string]interface{})
	if !ok {
		return true
	}
	state, _ := first["state"].(string)
	return state == "running"
}
