package engine

import "testing"

func TestWatchAccessFlag(t *testing.T) {
	cases := map[string]string{
		"read":      "-r ",
		"readWrite": "-a ",
		"write":     "",
		"":          "",
	}
	for accessType, want := range cases {
		if got := watchAccessFlag(accessType); got != want {
			t.Errorf("watchAccessFlag(%q) = %q, want %q", accessType, got, want)
		}
	}
}

func TestBkptNumber(t *testing.T) {
	results := map[string]interface{}{
		"bkpt": map[string]interface{}{"number": "3", "type": "breakpoint"},
	}
	n, ok := bkptNumber(results)
	if !ok || n != 3 {
		t.Fatalf("bkptNumber = %d, %v, want 3, true", n, ok)
	}
}

func TestBkptNumberMissing(t *testing.T) {
	if _, ok := bkptNumber(map[string]interface{}{}); ok {
		t.Fatal("expected ok=false for missing bkpt field")
	}
}

func TestWatchpointNumber(t *testing.T) {
	results := map[string]interface{}{
		"wpt": map[string]interface{}{"number": "7", "exp": "*0x1000"},
	}
	n, ok := watchpointNumber(results)
	if !ok || n != 7 {
		t.Fatalf("watchpointNumber = %d, %v, want 7, true", n, ok)
	}
}

func TestVerifiedMessage(t *testing.T) {
	got := verifiedMessage(4)
	want := "hardware breakpoint limit (4) exceeded"
	if got != want {
		t.Errorf("verifiedMessage(4) = %q, want %q", got, want)
	}
}
