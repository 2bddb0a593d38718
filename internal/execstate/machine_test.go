package execstate

import "testing"

func TestBootSequenceStopAtEntry(t *testing.T) {
	m := New()
	if m.Current() != AwaitingConnect {
		t.Fatalf("want AwaitingConnect, got %v", m.Current())
	}
	m.ToAwaitingEntry()
	if m.Current() != AwaitingEntry {
		t.Fatalf("want AwaitingEntry, got %v", m.Current())
	}
	if !m.EnterEntryStop(false) {
		t.Fatal("expected entry stop to apply")
	}
	if m.Current() != Stopped {
		t.Fatalf("want Stopped, got %v", m.Current())
	}
	if m.LastStop().Reason != "entry" {
		t.Fatalf("want entry reason, got %v", m.LastStop().Reason)
	}
}

func TestEnterEntryStopNoopOutsideAwaitingEntry(t *testing.T) {
	m := New()
	if m.EnterEntryStop(true) {
		t.Fatal("EnterEntryStop should be a no-op from AwaitingConnect")
	}
}

func TestRunningToSyntheticStopToRunningNeverReIssuesContinue(t *testing.T) {
	m := New()
	m.ToRunningAfterConnect()
	if !m.MustAnswerFromCache() {
		t.Fatal("Running must answer reads from cache")
	}
	m.EnterSyntheticStop(StopInfo{Reason: "pause"})
	if m.Current() != SyntheticStop {
		t.Fatalf("want SyntheticStop, got %v", m.Current())
	}
	if !m.LastStop().Synthetic {
		t.Fatal("stop info should be marked synthetic")
	}
	// DAP continue from SyntheticStop: begin run again without sending MI.
	m.BeginRun()
	if m.Current() != Running {
		t.Fatalf("want Running, got %v", m.Current())
	}
}

func TestLateStoppedClearsSyntheticFlag(t *testing.T) {
	m := New()
	m.ToRunningAfterConnect()
	m.EnterSyntheticStop(StopInfo{Reason: "pause"})
	ok := m.RealStop(StopInfo{Reason: "signal", ThreadID: 1})
	if !ok {
		t.Fatal("late *stopped from SyntheticStop should apply")
	}
	if m.Current() != Stopped {
		t.Fatalf("want Stopped, got %v", m.Current())
	}
	if m.LastStop().Synthetic {
		t.Fatal("synthetic flag should be cleared once a real stop lands")
	}
}

func TestRealStopRejectedWhenAlreadyStopped(t *testing.T) {
	m := New()
	if m.RealStop(StopInfo{Reason: "breakpoint"}) {
		t.Fatal("RealStop from AwaitingConnect should be rejected")
	}
	m.ToAwaitingEntry()
	m.EnterEntryStop(false)
	if m.RealStop(StopInfo{Reason: "breakpoint"}) {
		t.Fatal("RealStop from Stopped should be rejected")
	}
}

func TestTerminateFromAnyState(t *testing.T) {
	for _, seed := range []func(*Machine){
		func(m *Machine) {},
		func(m *Machine) { m.ToRunningAfterConnect() },
		func(m *Machine) { m.ToAwaitingEntry() },
	} {
		m := New()
		seed(m)
		m.Terminate()
		if m.Current() != Terminated {
			t.Fatalf("want Terminated, got %v", m.Current())
		}
	}
}

func TestIsStoppedLikeOnlyTrueWhenStopped(t *testing.T) {
	m := New()
	if m.IsStoppedLike() {
		t.Fatal("AwaitingConnect is not stopped-like")
	}
	m.ToAwaitingEntry()
	m.EnterEntryStop(false)
	if !m.IsStoppedLike() {
		t.Fatal("Stopped should be stopped-like")
	}
}
