package worker

import (
	"time"

	"raiseflow/models"
)

// RetryPolicy bounds how often a failing or contactless enrollment is
// retried before it is parked as failed. Zero values disable each limit.
type RetryPolicy struct {
	MaxAttempts     int
	Backoff         time.Duration
	MaxBackoff      time.Duration
	MaxContactSkips int
}

// RecordFailure books a failed execution attempt. It reports whether the
// enrollment moved to failed.
func (p RetryPolicy) RecordFailure(e *models.Enrollment, now time.Time, cause error) bool {
	e.AttemptCount++
	msg := cause.Error()
	e.LastError = &msg
	e.LastAttemptAt = &now

	if p.MaxAttempts > 0 && e.AttemptCount >= p.MaxAttempts {
		return Fail(e, now) == nil
	}

	if delay := p.Delay(e.AttemptCount); delay > 0 {
		at := now.Add(delay)
		e.NextSendAt = &at
	}
	return false
}

// RecordSkip books a pass where the step could not run for lack of a contact
// method. It reports whether the enrollment moved to failed.
func (p RetryPolicy) RecordSkip(e *models.Enrollment, now time.Time, cause error) bool {
	e.SkipCount++
	msg := cause.Error()
	e.LastError = &msg
	e.LastAttemptAt = &now

	if p.MaxContactSkips > 0 && e.SkipCount >= p.MaxContactSkips {
		return Fail(e, now) == nil
	}
	return false
}

// Delay is the exponential backoff before retry number attempt, capped at
// MaxBackoff.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.Backoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
		if delay <= 0 {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}
