package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mikro-design/rv32sim-dap-adapter/internal/execstate"
)

const entryStopDeadline = 5 * time.Second

// RunEntryProtocol implements the launch-time transitions:
// AwaitingConnect -> AwaitingEntry -> Stopped{reason:entry} when
// stopAtEntry is set, guaranteeing a DAP stopped event within a bounded
// time even if the target or GDB misbehaves; or straight to Running with
// an immediate -exec-continue when it isn't.
func (s *Session) RunEntryProtocol(ctx context.Context) error {
	if !s.cfg.stopAtEntry() {
		s.machine.ToRunningAfterConnect()
		_, err := s.sendMi(ctx, "-exec-continue")
		return err
	}

	s.machine.ToAwaitingEntry()

	results, err := s.sendMiTimeout(ctx, "-thread-info", 2*time.Second)
	if err == nil && !threadIsRunning(results) {
		s.finishEntryStop(false)
		return nil
	}

	if _, err := s.sendMi(ctx, "-exec-interrupt"); err != nil {
		// Interrupt failed (target not continuable yet): fall back to a
		// temporary entry breakpoint and continue into it.
		if err := s.insertTemporaryEntryBreakpoint(ctx); err != nil {
			s.finishEntryStop(true)
			return nil
		}
		if _, err := s.sendMi(ctx, "-exec-continue"); err != nil {
			s.finishEntryStop(true)
			return nil
		}
	}

	out := s.poller.Await(ctx, entryStopDeadline)
	s.finishEntryStop(out.Synthetic)
	return nil
}

func (s *Session) finishEntryStop(synthetic bool) {
	if s.machine.EnterEntryStop(synthetic) {
		s.clearCaches()
		s.emitStopped(execstate.StopInfo{Reason: "entry", ThreadID: 1, AllThreadsStopped: true, Synthetic: synthetic})
	}
}

// insertTemporaryEntryBreakpoint places a one-shot breakpoint at the
// known entry point: the launch-config override if present, or the
// current $pc.
func (s *Session) insertTemporaryEntryBreakpoint(ctx context.Context) error {
	addr := ""
	if s.cfg.EntryPoint != nil {
		addr = fmt.Sprintf("0x%x", *s.cfg.EntryPoint)
	} else {
		results, err := s.sendMi(ctx, `-data-evaluate-expression "$pc"`)
		if err != nil {
			return err
		}
		val, _ := results["value"].(string)
		if val == "" {
			return fmt.Errorf("could not resolve entry point: no $pc value")
		}
		addr = val
	}

	_, err := s.sendMi(ctx, fmt.Sprintf(`-break-insert -t -f *%s`, addr))
	return err
}

func threadIsRunning(results map[string]interface{}) bool {
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
