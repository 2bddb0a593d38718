package engine

import "testing"

func TestAtoiSafe(t *testing.T) {
	n, err := atoiSafe("42")
	if err != nil || n != 42 {
		t.Fatalf("atoiSafe(42) = %d, %v, want 42, nil", n, err)
	}
}

func TestAtoiSafeRejectsNonNumeric(t *testing.T) {
	if _, err := atoiSafe("12x"); err == nil {
		t.Fatal("expected error for non-numeric input")
	}
}

func TestAtoiSafeRejectsEmpty(t *testing.T) {
	if _, err := atoiSafe(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}
