package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("planes=%d", 4)
	if got != "planes=4" {
		t.Errorf("Logf wrote %q, want %q", got, "planes=4")
	}

	got = ""
	SetLogger(nil)
	Logf("muted")
	if got != "" {
		t.Errorf("nil logger should mute output, got %q", got)
	}
}

func TestComponentLogger(t *testing.T) {
	defer SetLogger(nil)

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	For("planner", "").Logf("coverage=%.1f", 42.0)
	For("scan", "abc").Logf("stop")

	want := []string{"[planner] coverage=42.0", "[scan abc] stop"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
