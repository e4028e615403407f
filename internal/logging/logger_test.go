package logging

import "testing"

func TestScopeID(t *testing.T) {
	if ScopeID("") != "" {
		t.Error("Expected empty fingerprint for empty scope")
	}

	a := ScopeID("token-a")
	if len(a) != 12 {
		t.Errorf("Expected 12 hex chars, got %q", a)
	}
	if a != ScopeID("token-a") {
		t.Error("Fingerprint must be stable")
	}
	if a == ScopeID("token-b") {
		t.Error("Different tokens must not share a fingerprint")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("truncate() = %q", got)
	}
}
