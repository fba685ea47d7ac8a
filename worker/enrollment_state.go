package worker

import (
	"errors"
	"fmt"
	"time"

	"raiseflow/models"
	"raiseflow/utils"
)

var ErrInvalidTransition = errors.New("invalid enrollment transition")

var transitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.EnrollmentActive: {models.EnrollmentPaused, models.EnrollmentCompleted, models.EnrollmentCancelled, models.EnrollmentFailed},
	models.EnrollmentPaused: {models.EnrollmentActive, models.EnrollmentCancelled},
	models.EnrollmentFailed: {models.EnrollmentActive, models.EnrollmentCancelled},
}

// CanTransition reports whether an enrollment may move from one status to another.
func CanTransition(from, to models.EnrollmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transition(e *models.Enrollment, to models.EnrollmentStatus) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("%w: enrollment %d %s -> %s", ErrInvalidTransition, e.ID, e.Status, to)
	}
	e.Status = to
	return nil
}

// Advance moves the cursor past the step that just executed and schedules
// the next one, completing the enrollment when no steps remain.
func Advance(e *models.Enrollment, seq *models.Sequence, now time.Time) error {
	if e.Status != models.EnrollmentActive {
		return fmt.Errorf("%w: cannot advance %s enrollment %d", ErrInvalidTransition, e.Status, e.ID)
	}

	if e.StartedAt == nil {
		e.StartedAt = &now
	}
	e.CurrentStepOrder++
	e.AttemptCount = 0
	e.SkipCount = 0
	e.LastError = nil
	e.LastAttemptAt = &now

	next, ok := seq.StepAt(e.CurrentStepOrder)
	if !ok {
		return Complete(e, now)
	}
	at := utils.AddDays(now, next.DelayDays)
	e.NextSendAt = &at
	return nil
}

// Complete finishes an enrollment whose cursor reached the step count.
func Complete(e *models.Enrollment, now time.Time) error {
	if err := transition(e, models.EnrollmentCompleted); err != nil {
		return err
	}
	e.CompletedAt = &now
	e.NextSendAt = nil
	return nil
}

func Pause(e *models.Enrollment) error {
	return transition(e, models.EnrollmentPaused)
}

func Resume(e *models.Enrollment) error {
	if e.Status != models.EnrollmentPaused {
		return fmt.Errorf("%w: resume requires paused, enrollment %d is %s", ErrInvalidTransition, e.ID, e.Status)
	}
	return transition(e, models.EnrollmentActive)
}

func Cancel(e *models.Enrollment, now time.Time) error {
	if err := transition(e, models.EnrollmentCancelled); err != nil {
		return err
	}
	e.CancelledAt = &now
	return nil
}

// Fail parks an enrollment whose retry budget ran out. NextSendAt is kept so
// Retry picks up where it left off.
func Fail(e *models.Enrollment, now time.Time) error {
	if err := transition(e, models.EnrollmentFailed); err != nil {
		return err
	}
	e.FailedAt = &now
	return nil
}

// Retry returns a failed enrollment to active with a fresh retry budget.
func Retry(e *models.Enrollment) error {
	if e.Status != models.EnrollmentFailed {
		return fmt.Errorf("%w: retry requires failed, enrollment %d is %s", ErrInvalidTransition, e.ID, e.Status)
	}
	if err := transition(e, models.EnrollmentActive); err != nil {
		return err
	}
	e.AttemptCount = 0
	e.SkipCount = 0
	e.LastError = nil
	e.FailedAt = nil
	return nil
}
