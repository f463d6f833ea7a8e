package logger

import "testing"

func TestRedact(t *testing.T) {
	in := []interface{}{"user_id", "u1", "jwt_token", "abc", "DB_PASSWORD", "pw", "count", 3, "dangling"}
	got := redact(in)

	want := []interface{}{"user_id", "u1", "jwt_token", "[REDACTED]", "DB_PASSWORD", "[REDACTED]", "count", 3, "dangling"}
	if len(got) != len(want) {
		t.Fatalf("redact returned %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("redact()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if in[3] != "abc" {
		t.Error("redact modified its input")
	}
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"production", "development", ""} {
		l, err := New(mode)
		if err != nil {
			t.Errorf("New(%q) error: %v", mode, err)
			continue
		}
		l.With("component", "test").Debug("hello", "n", 1)
	}
}
