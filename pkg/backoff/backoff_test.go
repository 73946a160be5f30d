package backoff

import (
	"testing"
	"time"
)

func TestExponentialDelay(t *testing.T) {
	b := Exponential{Initial: time.Second, Max: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{50, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialJitterStaysBounded(t *testing.T) {
	b := Exponential{Initial: time.Second, Max: 30 * time.Second, Jitter: 0.5}

	for attempt := 1; attempt <= 10; attempt++ {
		base := Exponential{Initial: b.Initial, Max: b.Max}.Delay(attempt)
		for i := 0; i < 50; i++ {
			got := b.Delay(attempt)
			if got < base || got > b.Max {
				t.Fatalf("Delay(%d) = %v, outside [%v, %v]", attempt, got, base, b.Max)
			}
		}
	}
}

func TestZeroInitialDisablesDelay(t *testing.T) {
	if got := (Exponential{}).Delay(3); got != 0 {
		t.Fatalf("Delay = %v, want 0", got)
	}
}
