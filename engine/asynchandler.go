package engine

import (
	"github.com/google/go-dap"

	"github.com/mikro-design/rv32sim-dap-adapter/internal/execstate"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/mi"
)

// onAsync is the Pipeline's AsyncHandler: every exec-async/notify-async/
// stream record GDB emits lands here, in arrival order, interleaved with
// reply routing. It is the only place MI async records are turned into
// state-machine transitions and DAP events.
func (s *Session) onAsync(rec *mi.Record) {
	s.mu.Lock()
	deferring := s.inHandshake
	s.mu.Unlock()

	if rec.IsStopped() {
		// A *stopped mid-handshake is stale by the time the handshake
		// finishes. Discard it; the state machine re-probes for the real
		// entry stop afterward.
		if deferring {
			return
		}
		s.handleStopped(rec)
		return
	}

	// *running and other async chatter need no action: the machine is
	// already in Running from BeginRun() by the time GDB confirms it.
}

func (s *Session) handleStopped(rec *mi.Record) {
	reasonRaw, _ := rec.Results["reason"].(string)
	reason := mi.StopReason(reasonRaw)

	threadID := 1
	if tid, ok := rec.Results["thread-id"].(string); ok {
		if n, err := atoiSafe(tid); err == nil {
			threadID = n
		}
	}

	var hitIDs []int
	if bk, ok := rec.Results["bkptno"].(string); ok {
		if n, err := atoiSafe(bk); err == nil {
			hitIDs = []int{n}
		}
	}

	info := execstate.StopInfo{
		Reason:            reason,
		ThreadID:          threadID,
		AllThreadsStopped: true,
		HitBreakpointIDs:  hitIDs,
	}

	s.poller.NotifyRealStop()

	if s.machine.RealStop(info) {
		s.clearCaches()
		s.emitStopped(info)
	}
}

func (s *Session) clearCaches() {
	s.mu.Lock()
	s.regCache = nil
	s.frameCache = nil
	s.mu.Unlock()
}

func (s *Session) emitStopped(info execstate.StopInfo) {
	s.sendEvent("stopped", dap.StoppedEventBody{
		Reason:            info.Reason,
		ThreadId:          info.ThreadID,
		AllThreadsStopped: info.AllThreadsStopped,
		HitBreakpointIds:  info.HitBreakpointIDs,
	})
}

func atoiSafe(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errNotNumeric
		}
		n = n*10 + int(c-'0')
	}
	if len(s) == 0 {
		return 0, errNotNumeric
	}
	return n, nil
}

var errNotNumeric = errNumericParse("not a numeric MI field")

type errNumericParse string

func (e errNumericParse) Error() string { return string(e) }
