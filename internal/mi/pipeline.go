package mi

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout is the per-command deadline used when a caller doesn't
// supply one. Background probes like -thread-info use a shorter 2s
// deadline instead.
const DefaultTimeout = 20 * time.Second

// RunningStateError is the typed error kind gating the SyntheticStop
// transition.
type RunningStateError struct {
	Message string
}

func (e *RunningStateError) Error() string { return e.Message }

var runningStatePhrases = []string{
	"selected thread is running",
	"thread is running",
	"running thread is required",
	"cannot execute this command while",
}

// IsRunningStateError reports true iff message (case-insensitive)
// contains any of the four phrases GDB uses to reject a command issued
// while the target is running.
func IsRunningStateError(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range runningStatePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DeadlineError is returned when a command's deadline fires before a
// reply arrives. It carries enough to diagnose a stuck pipeline.
type DeadlineError struct {
	Token        int
	Command      string
	Elapsed      time.Duration
	PendingCount int
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("mi: command %d (%q) timed out after %v with %d commands pending",
		e.Token, e.Command, e.Elapsed, e.PendingCount)
}

// ExitedError is returned to every pending/future command once GDB's
// stdout stream closes.
var ExitedError = fmt.Errorf("gdb exited")

type pending struct {
	token   int
	command string
	started time.Time
	resolve chan Reply
}

// Reply is the outcome of one MI command.
type Reply struct {
	Class   string
	Results map[string]interface{}
	Err     error
}

// AsyncHandler receives every async/notify/stream record as it arrives,
// in arrival order, interleaved with reply routing.
type AsyncHandler func(rec *Record)

// Pipeline serializes outgoing MI commands over a single GDB stdin/stdout
// pair, assigns each a fresh token, and routes the matching ^-class reply
// back to the caller — or abandons the slot on deadline. Results come
// back as a plain map[string]interface{}, with explicit token routing
// and per-command deadlines layered on top (see DESIGN.md).
type Pipeline struct {
	w io.Writer

	mu      sync.Mutex // serializes writes; one command in flight at a time
	nextTok int

	pendMu  sync.Mutex
	pending map[int]*pending

	onAsync AsyncHandler
	onExit  func(err error)

	closed chan struct{}
	once   sync.Once
}

// NewPipeline wires a pipeline that writes commands to w and expects the
// caller to feed it GDB's stdout lines via Feed, one line at a time.
func NewPipeline(w io.Writer, onAsync AsyncHandler) *Pipeline {
	return &Pipeline{
		w:       w,
		nextTok: 1,
		pending: make(map[int]*pending),
		onAsync: onAsync,
		closed:  make(chan struct{}),
	}
}

// Send serializes command (a full MI operation string including any
// dash-prefixed arguments, e.g. `-break-insert -f main.c:10`) with a fresh
// token, writes it, and waits for the matching ^done/^running/^connected
// or ^error, or for the deadline/exit to fire first.
func (p *Pipeline) Send(ctx context.Context, command string, timeout time.Duration) (map[string]interface{}, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	tok := p.nextTok
	p.nextTok++
	line := fmt.Sprintf("%d%s\n", tok, command)

	pend := &pending{token: tok, command: command, started: time.Now(), resolve: make(chan Reply, 1)}
	p.pendMu.Lock()
	p.pending[tok] = pend
	p.pendMu.Unlock()

	_, err := io.WriteString(p.w, line)

	if err != nil {
		p.abandon(tok)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-pend.resolve:
		if reply.Err != nil {
			return nil, reply.Err
		}
		return reply.Results, nil
	case <-timer.C:
		pendingCount := p.abandon(tok)
		return nil, &DeadlineError{Token: tok, Command: command, Elapsed: time.Since(pend.started), PendingCount: pendingCount}
	case <-ctx.Done():
		p.abandon(tok)
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ExitedError
	}
}

// abandon removes a pending slot (deadline or cancellation) and reports
// how many commands were still in flight at the time.
func (p *Pipeline) abandon(tok int) int {
	p.pendMu.Lock()
	delete(p.pending, tok)
	n := len(p.pending)
	p.pendMu.Unlock()
	return n
}

// Feed processes one line of GDB stdout: it either routes a result record
// to its waiting command or delivers an async/stream record to onAsync.
// Malformed lines are silently discarded.
func (p *Pipeline) Feed(line string) {
	rec, ok := Parse(line)
	if !ok {
		return
	}

	if rec.Type == Result {
		p.routeReply(rec)
		return
	}

	if p.onAsync != nil {
		p.onAsync(rec)
	}
}

func (p *Pipeline) routeReply(rec *Record) {
	p.pendMu.Lock()
	pend, ok := p.pending[rec.Token]
	if ok {
		delete(p.pending, rec.Token)
	}
	p.pendMu.Unlock()

	if !ok {
		// Late reply for an abandoned slot: silently dropped.
		return
	}

	reply := Reply{Class: rec.Class, Results: rec.Results}
	switch rec.Class {
	case "done", "connected", "running":
		// resolved
	case "error":
		msg, _ := rec.Results["msg"].(string)
		if IsRunningStateError(msg) {
			reply.Err = &RunningStateError{Message: msg}
		} else {
			reply.Err = fmt.Errorf("gdb error: %s", msg)
		}
	default:
		reply.Err = fmt.Errorf("unexpected result class %q", rec.Class)
	}

	pend.resolve <- reply
}

// Close rejects every pending command with ExitedError and prevents new
// commands from resolving; it is idempotent.
func (p *Pipeline) Close() {
	p.once.Do(func() {
		close(p.closed)
		p.pendMu.Lock()
		for tok, pend := range p.pending {
			pend.resolve <- Reply{Err: ExitedError}
			delete(p.pending, tok)
		}
		p.pendMu.Unlock()
	})
}

// PendingCount reports how many commands are currently in flight.
func (p *Pipeline) PendingCount() int {
	p.pendMu.Lock()
	defer p.pendMu.Unlock()
	return len(p.pending)
}
