package engine

import "testing"

func TestThreadIsRunningTrue(t *testing.T) {
	results := map[string]interface{}{
		"threads": []interface{}{
			map[string]interface{}{"id": "1", "state": "running"},
		},
	}
	if !threadIsRunning(results) {
		t.Error("expected threadIsRunning to report true for state=running")
	}
}

func TestThreadIsRunningFalse(t *testing.T) {
	results := map[string]interface{}{
		"threads": []interface{}{
			map[string]interface{}{"id": "1", "state": "stopped"},
		},
	}
	if threadIsRunning(results) {
		t.Error("expected threadIsRunning to report false for state=stopped")
	}
}

func TestThreadIsRunningDefaultsTrueWhenMissing(t *testing.T) {
	if !threadIsRunning(map[string]interface{}{}) {
		t.Error("expected threadIsRunning to default to true when threads field is absent")
	}
}
