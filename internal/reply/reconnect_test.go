package reply

import (
	"testing"
	"time"
)

func TestNextDelay_DoublesUpToMax(t *testing.T) {
	opts := ReconnectOptions{BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		d, giveUp := NextDelay(i+1, opts, 0.5)
		if giveUp {
			t.Fatalf("attempt %d: unexpected giveUp", i+1)
		}
		if d != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, d, w)
		}
	}
}

func TestNextDelay_CustomFactor(t *testing.T) {
	opts := ReconnectOptions{BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, Factor: 3}
	want := []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond, 4500 * time.Millisecond, 10 * time.Second}
	for i, w := range want {
		d, giveUp := NextDelay(i+1, opts, 0)
		if giveUp {
			t.Fatalf("attempt %d: unexpected giveUp", i+1)
		}
		if d != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, d, w)
		}
	}
}

func TestNextDelay_ZeroOptionsUsesDefaults(t *testing.T) {
	d, giveUp := NextDelay(1, ReconnectOptions{}, 0)
	if giveUp || d != time.Second {
		t.Errorf("delay = %v giveUp=%v, want 1s false", d, giveUp)
	}
}

func TestNextDelay_MaxAttemptsGivesUp(t *testing.T) {
	opts := ReconnectOptions{BaseDelay: time.Second, MaxDelay: 10 * time.Second, MaxAttempts: 3}
	if _, giveUp := NextDelay(4, opts, 0); !giveUp {
		t.Error("expected giveUp past MaxAttempts")
	}
	if _, giveUp := NextDelay(3, opts, 0); giveUp {
		t.Error("did not expect giveUp at MaxAttempts")
	}
}

func TestNextDelay_JitterStaysWithinEnvelope(t *testing.T) {
	opts := ReconnectOptions{BaseDelay: time.Second, MaxDelay: 30 * time.Second, JitterFraction: 0.2}
	base := 4 * time.Second // attempt 3 pre-jitter
	low := base - base/10
	high := base + base/10
	for _, j := range []float64{0, 0.5, 1} {
		d, _ := NextDelay(3, opts, j)
		if d < low || d > high {
			t.Errorf("jitter %v produced delay %v outside [%v,%v]", j, d, low, high)
		}
	}
}
