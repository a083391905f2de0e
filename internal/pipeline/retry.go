package pipeline

import "time"

// Policy decides whether and when to re-attempt a failed conversion.
// Delays follow bounded exponential backoff: base * 2^(n-1), capped.
// Only transient outcomes consult the policy; exceeding MaxAttempts
// escalates the outcome to permanent.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// ShouldRetry reports whether another attempt may follow the given failed
// attempt number, and the backoff delay before it becomes eligible. The
// delay gates eligibility for re-dispatch; it is never a blocking sleep for
// the rest of the pipeline.
func (p Policy) ShouldRetry(attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}

	// Shifting past 30 doublings is already far beyond any sane cap.
	shift := attempt - 1
	if shift > 30 {
		return p.Cap, true
	}

	delay := p.Base << shift
	if delay > p.Cap || delay < p.Base {
		delay = p.Cap
	}
	return delay, true
}

// RetryState tracks the retry bookkeeping for one in-flight path. It exists
// only for logging and health reporting; it is deleted on any terminal
// outcome and never persisted.
type RetryState struct {
	Path           string
	Attempt        int
	NextEligibleAt time.Time
}
