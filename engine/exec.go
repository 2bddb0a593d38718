package engine

import (
	"context"
	"time"

	"github.com/google/go-dap"

	"github.com/mikro-design/rv32sim-dap-adapter/internal/execstate"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/mi"
)

const (
	continueDeadline = 30 * time.Second
	stepDeadline     = 3 * time.Second
	pauseDeadline    = 2 * time.Second
)

// Continue implements the DAP `continue` gate. From Stopped it issues
// -exec-continue; from SyntheticStop it must NOT issue
// -exec-continue (GDB still believes it is running) — it only flips the
// local state and re-arms stop detection, the one hard invariant around
// the synthetic-stop fallback.
func (s *Session) Continue(ctx context.Context) error {
	switch s.machine.Current() {
	case execstate.SyntheticStop:
		s.machine.BeginRun()
		s.sendEvent("continued", dap.ContinuedEventBody{ThreadId: 1, AllThreadsContinued: true})
		s.armRecovery(ctx, continueDeadline)
		return nil
	case execstate.Stopped, execstate.AwaitingEntry:
		s.machine.BeginRun()
		if _, err := s.sendMi(ctx, "-exec-continue"); err != nil {
			return err
		}
		s.armRecovery(ctx, continueDeadline)
		return nil
	default:
		return nil
	}
}

// Pause issues -exec-interrupt and arms the recovery poller for the
// shorter pause deadline. A pause request while already believed
// stopped (including SyntheticStop) is a no-op success.
func (s *Session) Pause(ctx context.Context) error {
	if s.machine.Current() != execstate.Running {
		return nil
	}
	if _, err := s.sendMi(ctx, "-exec-interrupt"); err != nil {
		return err
	}
	s.armRecovery(ctx, pauseDeadline)
	return nil
}

// Next/StepIn/StepOut share the step gate: from Stopped, issue the step
// directly; from SyntheticStop, clear the synthetic flag first, then
// issue the step, and recover via -exec-interrupt if GDB rejects it as a
// running-state error.
func (s *Session) Next(ctx context.Context) error    { return s.step(ctx, "-exec-next") }
func (s *Session) StepIn(ctx context.Context) error  { return s.step(ctx, "-exec-step") }
func (s *Session) StepOut(ctx context.Context) error { return s.step(ctx, "-exec-finish") }

func (s *Session) step(ctx context.Context, miCommand string) error {
	wasSynthetic := s.machine.Current() == execstate.SyntheticStop
	s.machine.BeginRun()

	_, err := s.sendMi(ctx, miCommand)
	if err != nil && wasSynthetic && mi.IsRunningStateError(err.Error()) {
		if _, ierr := s.sendMi(ctx, "-exec-interrupt"); ierr == nil {
			_, err = s.sendMi(ctx, miCommand)
		}
	}
	if err != nil {
		return err
	}

	s.armRecovery(ctx, stepDeadline)
	return nil
}

// armRecovery runs the stop-recovery protocol in the background for the
// given deadline. A real *stopped is handled by onAsync/handleStopped,
// which wakes the poller through its realStop signal; that outcome
// carries no reason and needs nothing more here. A -thread-info probe
// that saw the target halted moves the machine to Stopped and emits the
// DAP stopped event. The synthetic fallback moves it to SyntheticStop
// and emits the event, keeping the frame/register caches so reads in
// SyntheticStop are answered from them.
func (s *Session) armRecovery(ctx context.Context, deadline time.Duration) {
	s.bgGroup.Go(func() error {
		out := s.poller.Await(ctx, deadline)
		if out.Synthetic {
			s.machine.EnterSyntheticStop(execstate.StopInfo{Reason: out.Reason, ThreadID: 1, AllThreadsStopped: true})
			s.emitStopped(execstate.StopInfo{Reason: out.Reason, ThreadID: 1, AllThreadsStopped: true, Synthetic: true})
			return nil
		}
		if out.Reason == "" {
			return nil
		}
		info := execstate.StopInfo{Reason: out.Reason, ThreadID: 1, AllThreadsStopped: true}
		if s.machine.RealStop(info) {
			s.clearCaches()
			s.emitStopped(info)
		}
		return nil
	})
}
