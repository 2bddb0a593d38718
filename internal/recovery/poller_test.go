package recovery

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu        sync.Mutex
	calls     []string
	stateFunc func(call int) string // "running" or "stopped"
	n         int
}

func (f *fakeSender) Send(ctx context.Context, command string, timeout time.Duration) (map[string]interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.n++
	n := f.n
	f.mu.Unlock()

	if command != "-thread-info" {
		return map[string]interface{}{}, nil
	}
	state := "running"
	if f.stateFunc != nil {
		state = f.stateFunc(n)
	}
	return map[string]interface{}{
		"threads": []interface{}{
			map[string]interface{}{"id": "1", "state": state},
		},
	}, nil
}

func TestAwaitResolvesOnRealStopSignal(t *testing.T) {
	fs := &fakeSender{}
	p := New(fs, nil)

	done := make(chan Outcome, 1)
	go func() { done <- p.Await(context.Background(), 3*time.Second) }()

	time.Sleep(10 * time.Millisecond)
	p.NotifyRealStop()

	select {
	case out := <-done:
		if !out.Stopped || out.Synthetic {
			t.Fatalf("expected real (non-synthetic) stop, got %+v", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not resolve after NotifyRealStop")
	}
}

func TestAwaitResolvesViaThreadInfoProbe(t *testing.T) {
	fs := &fakeSender{stateFunc: func(n int) string {
		if n >= 2 {
			return "stopped"
		}
		return "running"
	}}
	p := New(fs, nil)

	out := p.Await(context.Background(), 3*time.Second)
	if !out.Stopped || out.Synthetic {
		t.Fatalf("expected real stop via probe, got %+v", out)
	}
}

func TestAwaitFallsBackToSyntheticAfterEscalation(t *testing.T) {
	fs := &fakeSender{} // always "running"
	interrupted := 0
	p := New(fs, func() error { interrupted++; return nil })

	out := p.Await(context.Background(), 150*time.Millisecond)
	if !out.Stopped || !out.Synthetic {
		t.Fatalf("expected synthetic stop, got %+v", out)
	}
	if interrupted != escalationRounds {
		t.Fatalf("expected %d interrupt escalations, got %d", escalationRounds, interrupted)
	}
}

func TestSingleFlightJoinsExistingPoll(t *testing.T) {
	fs := &fakeSender{}
	p := New(fs, nil)

	var wg sync.WaitGroup
	results := make([]Outcome, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Await(context.Background(), 3*time.Second)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	p.NotifyRealStop()
	wg.Wait()

	for _, r := range results {
		if !r.Stopped {
			t.Fatalf("all joiners should observe the same stop, got %+v", r)
		}
	}
	// Only one logical poll ran: it should not have spawned per-caller
	// -thread-info traffic beyond what a single poll issues.
	fs.mu.Lock()
	calls := len(fs.calls)
	fs.mu.Unlock()
	if calls > 2 {
		t.Fatalf("expected single-flight polling, saw %d MI calls", calls)
	}
}
