package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/kr/pty"

	"github.com/mikro-design/rv32sim-dap-adapter/internal/assertio"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/mi"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/recovery"
)

// SimulatorConfig is the adapter-owned complement to `miDebuggerServerAddress`:
// where to find and how to launch the rv32sim child whose stdin/stdout
// carry the MMIO assert side channel. The wire-exact DAP launch table
// only names the GDB-facing remote address; spawning rv32sim
// as our own child (rather than assuming it is already running and
// somehow handing us its pipes) is the only way this adapter can own its
// stdin for the auto-responder — see DESIGN.md.
type SimulatorConfig struct {
	Path           string
	Args           []string
	WritesDisabled bool
}

// Spawn starts GDB under a pty (a pty line-buffers output that would
// otherwise sit behind a pipe's block buffering) in MI2 mode with no
// init file and a quiet banner.
func (s *Session) Spawn(cfg LaunchConfig) error {
	s.cfg = cfg

	gdbPath, err := CheckGdbExecutable(cfg.gdbExecutable(), ">= 7.11.1")
	if err != nil {
		return err
	}

	args := []string{gdbPath, "-q", "--nx", "--interpreter=mi2"}
	Verboseln("adapter: issuing command:", strings.Join(args, " "))

	cmd := exec.Command(args[0], args[1:]...)
	f, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("spawning gdb: %w", err)
	}

	s.gdbCmd = cmd
	s.gdbIn = f
	s.pipe = mi.NewPipeline(f, s.onAsync)
	s.poller = recovery.New(s.pipe, s.writeGdbCtrlC)

	go s.pumpGdbOutput(f)
	go s.watchGdbExit()

	return nil
}

// pumpGdbOutput feeds GDB's stdout line by line to the pipeline, which
// either routes a reply or delivers an async record: one reader
// dispatching in arrival order.
func (s *Session) pumpGdbOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if ShowGdbNotifications {
			fmt.Fprintln(os.Stderr, line)
		}
		s.pipe.Feed(line)
	}
}

func (s *Session) watchGdbExit() {
	_ = s.gdbCmd.Wait()
	s.onGdbExit()
}

// onGdbExit implements the "any state -> Terminated" transition: every
// pending MI future rejects with ExitedError and a DAP terminated event
// fires exactly once.
func (s *Session) onGdbExit() {
	s.machine.Terminate()
	s.pipe.Close()
	s.sendEvent("terminated", nil)
}

// Handshake runs the startup sequence: pagination/breakpoint/
// target-async configuration, target selection, any `_postConnectCommands`,
// then the load command. A *stopped arriving mid-handshake is deferred
// (discarded, not replayed) because the state machine will re-probe
// once the handshake completes.
func (s *Session) Handshake(ctx context.Context) error {
	s.mu.Lock()
	s.inHandshake = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inHandshake = false
		s.mu.Unlock()
	}()

	steps := []string{
		"-gdb-set pagination off",
		"-gdb-set breakpoint pending on",
		"-gdb-set target-async on",
	}
	for _, step := range steps {
		if _, err := s.sendMi(ctx, step); err != nil {
			return err
		}
	}

	if _, err := s.sendMi(ctx, targetSelectCommand(s.cfg.MiDebuggerServerAddress)); err != nil {
		return err
	}

	for _, extra := range s.cfg.PostConnectCommands {
		if _, err := s.sendMi(ctx, "-interpreter-exec console \""+escapeMi(extra)+"\""); err != nil {
			return err
		}
	}

	if _, err := s.sendMi(ctx, "-interpreter-exec console \""+escapeMi(s.cfg.loadCommand())+"\""); err != nil {
		return err
	}

	return nil
}

// targetSelectCommand builds -target-select remote for a host:port
// address, or bridges a unix socket address through a stdio helper
// ("|<bridge> <socket>" pipe command), since GDB's own remote target
// speaks TCP or a literal pipe command, not unix sockets directly.
func targetSelectCommand(addr string) string {
	if strings.HasPrefix(addr, "unix:") {
		socket := strings.TrimPrefix(strings.TrimPrefix(addr, "unix://"), "unix:")
		return fmt.Sprintf("-target-select remote |socat - UNIX-CONNECT:%s", socket)
	}
	return fmt.Sprintf("-target-select remote %s", addr)
}

func escapeMi(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// writeGdbCtrlC writes a single Ctrl-C byte to GDB's stdin as the hard
// escalation path: never a process signal, which would corrupt the MI
// channel.
func (s *Session) writeGdbCtrlC() error {
	_, err := s.gdbIn.Write([]byte{0x03})
	return err
}

// SpawnSimulator starts rv32sim under its own pty so the adapter owns a
// single fd for both its stdout (the [ASSERT] prompt stream) and its
// stdin (assert responses). Optional: a launch that supplies an
// externally-managed miDebuggerServerAddress with no SimulatorConfig
// skips this entirely and only the MI side channel is active.
func (s *Session) SpawnSimulator(sim SimulatorConfig) error {
	if sim.Path == "" {
		return nil
	}
	if _, err := CheckSimExecutable(sim.Path, ">= 0.1.0"); err != nil {
		Verboseln("adapter: rv32sim preflight skipped:", err)
	}

	cmd := exec.Command(sim.Path, sim.Args...)
	f, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("spawning rv32sim: %w", err)
	}
	s.simCmd = cmd
	s.simIn = f

	s.responder = assertio.NewResponder(f, sim.WritesDisabled, s.onReadPrompt)
	s.assertP = assertio.NewParser(s.responder.HandlePrompt)

	go s.pumpSimulatorOutput(f)
	return nil
}

func (s *Session) pumpSimulatorOutput(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.assertP.Feed(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// onReadPrompt surfaces a ready MMIO read prompt to the IDE as a DAP
// output event rather than a dedicated request type.
func (s *Session) onReadPrompt(p *assertio.Prompt) {
	s.output("console", fmt.Sprintf("[ASSERT] MMIO read at %s size=%s PC=%s awaiting response\n", p.Address, p.Size, p.PC))
}

// RespondAssert answers a pending read prompt; raw is sanitized before
// being written to the simulator's stdin.
func (s *Session) RespondAssert(raw string) error {
	if s.responder == nil {
		return fmt.Errorf("no simulator attached")
	}
	return s.responder.Respond(raw)
}

// WatchParent polls every second for whether the adapter has been
// reparented to init (pid 1), which means the IDE that spawned us has
// died, and shuts down to avoid an orphaned GDB.
func (s *Session) WatchParent(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if os.Getppid() == 1 {
				color.Yellow("adapter: parent process gone, shutting down")
				s.Shutdown(ctx)
				return
			}
		}
	}
}

// Shutdown runs -gdb-exit, close stdin, SIGTERM, and after 1s SIGKILL if
// GDB hasn't exited. Idempotent. SIGTERM, never SIGINT: GDB treats
// SIGINT on its own process the same as a malformed Ctrl-C escape and
// can leave the MI channel in a bad state right as it's exiting.
func (s *Session) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		s.drainBackground()
		if s.pipe != nil {
			shutCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			_, _ = s.sendMi(shutCtx, "-gdb-exit")
			cancel()
		}
		if s.gdbIn != nil {
			_ = s.gdbIn.Close()
		}
		if s.gdbCmd != nil && s.gdbCmd.Process != nil {
			_ = s.gdbCmd.Process.Signal(syscall.SIGTERM)
			done := make(chan struct{})
			go func() { _ = s.gdbCmd.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(1 * time.Second):
				_ = s.gdbCmd.Process.Kill()
			}
		}
		if s.simCmd != nil && s.simCmd.Process != nil {
			_ = s.simCmd.Process.Kill()
		}
		close(s.disconnectDone)
	})
}

// drainBackground waits for any in-flight armRecovery pollers to finish
// so they don't touch GDB's stdin after it's closed below. A poller runs
// for its continue/step/pause deadline plus up to three escalation
// rounds; the wait here is capped at the continue deadline plus one
// second, and a poller still escalating past that point is not waited
// for.
func (s *Session) drainBackground() {
	done := make(chan struct{})
	go func() {
		_ = s.bgGroup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(continueDeadline + time.Second):
	}
}
