// Package backoff computes capped, jittered exponential delays shared by the
// transport reconnect loops and the command dispatcher.
package backoff

import (
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Exponential doubles Initial on every attempt until Max is reached.
// Jitter is the maximum extra fraction added to each delay; the result never
// exceeds Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// Delay returns the wait before the given attempt. Attempts are 1-based;
// values below 1 are treated as the first attempt.
func (e Exponential) Delay(attempt int) time.Duration {
	if e.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	d := e.Initial
	for i := 1; i < attempt; i++ {
		if e.Max > 0 && d >= e.Max {
			break
		}
		d *= 2
	}

	if e.Jitter > 0 {
		d = wait.Jitter(d, e.Jitter)
	}
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}

	return d
}
