package models

import (
	"time"

	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
	// EnrollmentFailed is reached after the retry budget is exhausted and
	// waits for an operator to retry or cancel.
	EnrollmentFailed EnrollmentStatus = "failed"
)

// IsTerminal reports whether no transition leaves the status.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentCancelled
}

// Enrollment binds one Investor to one Sequence. CurrentStepOrder is the
// zero-based index of the next step to execute.
type Enrollment struct {
	gorm.Model
	SequenceID uint  `gorm:"not null;index" json:"sequence_id"`
	InvestorID uint  `gorm:"not null;index" json:"investor_id"`
	CampaignID *uint `gorm:"index" json:"campaign_id,omitempty"`

	Status           EnrollmentStatus `gorm:"type:varchar(16);default:'active';index:idx_enrollment_due,priority:1" json:"status"` // active, paused, completed, cancelled, failed
	CurrentStepOrder int              `gorm:"not null;default:0" json:"current_step_order"`
	NextSendAt       *time.Time       `gorm:"index:idx_enrollment_due,priority:2" json:"next_send_at"`

	EnrolledAt  time.Time  `gorm:"not null" json:"enrolled_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	FailedAt    *time.Time `json:"failed_at"`

	// Retry bookkeeping
	AttemptCount  int        `gorm:"default:0" json:"attempt_count"`
	SkipCount     int        `gorm:"default:0" json:"skip_count"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`

	// Lease held by the scheduler pass that claimed the row
	ClaimedBy    string     `gorm:"type:varchar(64);index" json:"-"`
	ClaimedUntil *time.Time `json:"-"`

	// Relations
	Sequence *Sequence `json:"-"`
	Investor *Investor `json:"-"`
	Campaign *Campaign `json:"-"`
}

// NewEnrollment returns an active enrollment at cursor 0, due at startAt.
func NewEnrollment(sequenceID, investorID uint, campaignID *uint, startAt time.Time) *Enrollment {
	return &Enrollment{
		SequenceID: sequenceID,
		InvestorID: investorID,
		CampaignID: campaignID,
		Status:     EnrollmentActive,
		NextSendAt: &startAt,
		EnrolledAt: startAt,
	}
}

// IsDue reports whether the enrollment is selectable as due work at now.
func (e *Enrollment) IsDue(now time.Time) bool {
	if e.Status != EnrollmentActive || e.NextSendAt == nil || e.NextSendAt.After(now) {
		return false
	}
	return e.ClaimedUntil == nil || !e.ClaimedUntil.After(now)
}
