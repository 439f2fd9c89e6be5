package id

import (
	"strings"
	"testing"
)

func TestNewGenerates26CharLowercaseIDs(t *testing.T) {
	generated, err := New()
	if err != nil {
		t.Fatalf("generate id: %v", err)
	}
	if len(generated) != 26 {
		t.Fatalf("expected 26 characters, got %d (%q)", len(generated), generated)
	}
	if generated != strings.ToLower(generated) {
		t.Fatalf("expected lowercase id, got %q", generated)
	}
}

func TestNewGeneratesUniqueIDs(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		generated, err := New()
		if err != nil {
			t.Fatalf("generate id: %v", err)
		}
		if _, ok := seen[generated]; ok {
			t.Fatalf("duplicate id generated: %q", generated)
		}
		seen[generated] = struct{}{}
	}
}
