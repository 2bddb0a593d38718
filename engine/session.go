package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/go-dap"
	"golang.org/x/sync/errgroup"

	"github.com/mikro-design/rv32sim-dap-adapter/internal/assertio"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/breakreg"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/dapframe"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/execstate"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/mi"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/recovery"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/varref"
)

// ServerCapabilities is the `_serverCapabilities` launch-config block:
// optional hints about what this particular rv32sim build and remote
// stub actually support — hardware breakpoint count and multi-thread
// support both vary by target.
type ServerCapabilities struct {
	SupportsHardwareBreakpoints bool `json:"supportsHardwareBreakpoints"`
	SupportsWatchpoints         bool `json:"supportsWatchpoints"`
	SupportsMultiThread         bool `json:"supportsMultiThread"`
	HwBreakpointLimit           int  `json:"hwBreakpointLimit"`
	SupportsLiveMemoryRead      bool `json:"supportsLiveMemoryRead"`
}

// LaunchConfig is the recognized `launch` arguments block.
type LaunchConfig struct {
	Program                 string             `json:"program"`
	GdbPath                 string             `json:"gdbPath"`
	MiDebuggerPath          string             `json:"miDebuggerPath"`
	MiDebuggerServerAddress string             `json:"miDebuggerServerAddress"`
	StopAtEntry             *bool              `json:"stopAtEntry"`
	EntryPoint              *uint64            `json:"entryPoint"`
	GdbTimeoutMs            int                `json:"gdbTimeoutMs"`
	ServerCapabilities      ServerCapabilities `json:"_serverCapabilities"`
	PostConnectCommands     []string           `json:"_postConnectCommands"`
	LoadCommand             string             `json:"_loadCommand"`
}

func (c *LaunchConfig) gdbExecutable() string {
	if c.MiDebuggerPath != "" {
		return c.MiDebuggerPath
	}
	if c.GdbPath != "" {
		return c.GdbPath
	}
	return "gdb"
}

func (c *LaunchConfig) stopAtEntry() bool {
	if c.StopAtEntry == nil {
		return true
	}
	return *c.StopAtEntry
}

func (c *LaunchConfig) timeout() time.Duration {
	if c.GdbTimeoutMs <= 0 {
		return mi.DefaultTimeout
	}
	return time.Duration(c.GdbTimeoutMs) * time.Millisecond
}

func (c *LaunchConfig) loadCommand() string {
	if c.LoadCommand != "" {
		return c.LoadCommand
	}
	return fmt.Sprintf("monitor load_elf %s", c.Program)
}

// registerPair is one entry of the register cache.
type registerPair struct {
	Name  string
	Value string
}

// Session is the adapter core for one DAP client connection: it owns the
// GDB/rv32sim child processes, the MI pipeline, the execution state
// machine, the recovery poller, the breakpoint/variable registries, and
// the stop/frame/register caches that let reads be answered without
// touching GDB while Running or in SyntheticStop.
type Session struct {
	cfg LaunchConfig

	dapOut   io.Writer
	dapOutMu sync.Mutex

	gdbCmd *exec.Cmd
	gdbIn  io.WriteCloser
	pipe   *mi.Pipeline

	machine *execstate.Machine
	poller  *recovery.Poller

	bps  *breakreg.Registry
	vars *varref.Table

	simCmd      *exec.Cmd
	simIn       io.Writer
	assertP     *assertio.Parser
	responder   *assertio.Responder

	mu             sync.Mutex
	inHandshake    bool
	regCache       []registerPair
	frameCache     []dap.StackFrame
	nextSeq        int
	shutdownOnce   sync.Once
	disconnectDone chan struct{}

	// bgGroup tracks the background recovery-poller goroutines armRecovery
	// spawns per continue/step/pause call. disconnect/terminate must drain
	// these before replying so a straggling poller doesn't write to a
	// closed GDB stdin — the same golang.org/x/sync/errgroup draining
	// primitive a DAP server uses to track per-request handlers, applied
	// here to background pollers instead.
	bgGroup errgroup.Group
}

// NewSession wires every leaf package together. dapOut is the stream the
// adapter writes framed DAP messages to (normally the process's stdout).
func NewSession(dapOut io.Writer) *Session {
	s := &Session{
		dapOut:         dapOut,
		machine:        execstate.New(),
		bps:            breakreg.New(),
		vars:           varref.New(),
		disconnectDone: make(chan struct{}),
	}
	return s
}

// sendDAP serializes writes to the DAP output stream: go-dap's framer is
// not itself safe for concurrent writers, and a response must be fully
// emitted before the next request begins processing.
func (s *Session) sendDAP(msg dap.Message) {
	s.dapOutMu.Lock()
	defer s.dapOutMu.Unlock()
	_ = dapframe.Encode(s.dapOut, msg)
}

func (s *Session) sendEvent(event string, body interface{}) {
	raw, _ := json.Marshal(body)
	e := &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.seq(), Type: "event"},
		Event:           event,
	}
	if body == nil {
		s.sendDAP(e)
		return
	}
	switch event {
	case "initialized":
		s.sendDAP(&dap.InitializedEvent{Event: *e})
	case "terminated":
		s.sendDAP(&dap.TerminatedEvent{Event: *e})
	case "stopped":
		var b dap.StoppedEventBody
		_ = json.Unmarshal(raw, &b)
		s.sendDAP(&dap.StoppedEvent{Event: *e, Body: b})
	case "continued":
		var b dap.ContinuedEventBody
		_ = json.Unmarshal(raw, &b)
		s.sendDAP(&dap.ContinuedEvent{Event: *e, Body: b})
	case "output":
		var b dap.OutputEventBody
		_ = json.Unmarshal(raw, &b)
		s.sendDAP(&dap.OutputEvent{Event: *e, Body: b})
	default:
		s.sendDAP(e)
	}
}

func (s *Session) seq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	return s.nextSeq
}

func newResponse(requestSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Command:         command,
		RequestSeq:      requestSeq,
		Success:         true,
	}
}

func (s *Session) sendErrorResponse(requestSeq int, command, message string) {
	r := &dap.ErrorResponse{Response: newResponse(requestSeq, command)}
	r.Success = false
	r.Message = message
	r.Body.Error = &dap.ErrorMessage{Format: message, Id: 1, ShowUser: true}
	s.sendDAP(r)
}

func (s *Session) output(category, text string) {
	s.sendEvent("output", dap.OutputEventBody{Category: category, Output: text})
}

// sendMi writes one MI command through the pipeline with logging,
// honoring the launch config's timeout override (`gdbTimeoutMs`).
func (s *Session) sendMi(ctx context.Context, command string) (map[string]interface{}, error) {
	logGdbSend(command)
	results, err := s.pipe.Send(ctx, command, s.cfg.timeout())
	logGdbReply(results, err)
	return results, err
}

// sendMiTimeout is sendMi with an explicit deadline, used for background
// probes like -thread-info (2s) that must not inherit the user's
// longer command timeout.
func (s *Session) sendMiTimeout(ctx context.Context, command string, timeout time.Duration) (map[string]interface{}, error) {
	logGdbSend(command)
	results, err := s.pipe.Send(ctx, command, timeout)
	logGdbReply(results, err)
	return results, err
}

// readyForReads reports whether it's safe to issue a read-type MI
// command right now.
func (s *Session) readyForReads() bool {
	return !s.machine.MustAnswerFromCache()
}
