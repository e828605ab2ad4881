package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"Authorization", "Bearer abc",
		"idempotency_key", "retry-1",
		"scope", "acme@abc:a.go",
		"dangling",
	})
	if len(out) != 7 {
		t.Fatalf("len = %d, want 7", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("authorization = %v", out[1])
	}
	hashed, _ := out[3].(string)
	if !strings.HasPrefix(hashed, "hash:") || strings.Contains(hashed, "retry-1") {
		t.Fatalf("idempotency_key = %v", out[3])
	}
	if out[5] != "acme@abc:a.go" {
		t.Fatalf("scope = %v", out[5])
	}
	if out[6] != "dangling" {
		t.Fatalf("dangling key = %v", out[6])
	}
}

func TestHashValueStable(t *testing.T) {
	if hashValue("k") != hashValue("k") {
		t.Fatal("hash not stable")
	}
	if hashValue("") != "" {
		t.Fatal("empty value should hash to empty")
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"test", "development", "production"} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		l.With("component", "x").Debug("hello", "n", 1)
	}
}
