package promptparty

import (
	"testing"
	"time"
)

func TestRoundWindow(t *testing.T) {
	r := Round{DurationMs: 30000, ToleranceMs: 5000}
	if got := r.Window(); got != 35*time.Second {
		t.Fatalf("Window() = %v, want 35s", got)
	}
}
