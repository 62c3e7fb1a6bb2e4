package client

import "time"

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second

	// backoffMaxAttempts bounds the reconnect loop; once spent, the
	// failure is surfaced and the player rejoins explicitly.
	backoffMaxAttempts = 10
)

// Backoff yields capped exponential reconnect delays with a bounded
// attempt budget. Reset after a successful reconciliation.
type Backoff struct {
	attempt int
}

// Next returns the delay before the next attempt, or false when the
// attempt budget is exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempt >= backoffMaxAttempts {
		return 0, false
	}
	d := backoffBase << b.attempt
	if d >= backoffCap || d <= 0 {
		d = backoffCap
	}
	b.attempt++
	return d, true
}

func (b *Backoff) Exhausted() bool { return b.attempt >= backoffMaxAttempts }

func (b *Backoff) Reset() { b.attempt = 0 }
