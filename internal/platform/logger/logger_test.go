package logger

import (
	"strings"
	"testing"
)

func TestSanitizeValue(t *testing.T) {
	if got := sanitizeValue("upload_uri", "https://x/y?sig=abc"); got != "[REDACTED]" {
		t.Fatalf("upload_uri: want=[REDACTED] got=%v", got)
	}
	got, ok := sanitizeValue("email", "ada@example.org").(string)
	if !ok || !strings.HasPrefix(got, "hash:") {
		t.Fatalf("email: want hash prefix got=%v", got)
	}
	if again := sanitizeValue("email", "ada@example.org"); again != got {
		t.Fatalf("email hash not stable: %v vs %v", again, got)
	}
	if got := sanitizeValue("input_id", 42); got != 42 {
		t.Fatalf("input_id: want=42 got=%v", got)
	}
}

func TestNewTestModeIsNop(t *testing.T) {
	l, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.With("k", "v").Info("discarded")
}
