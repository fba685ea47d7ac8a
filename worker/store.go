package worker

import (
	"context"
	"errors"
	"time"

	"raiseflow/models"
)

var (
	ErrLeaseLost          = errors.New("enrollment lease lost")
	ErrEnrollmentBusy     = errors.New("enrollment is being processed")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrSequenceNotFound   = errors.New("sequence not found")
	ErrInvestorNotFound   = errors.New("investor not found")
)

// EventStore persists outreach events for the step executor.
type EventStore interface {
	// FindExecutedEvent returns the latest non-bounced event for the
	// enrollment/step pair, or nil when the step has not run.
	FindExecutedEvent(ctx context.Context, enrollmentID, stepID uint) (*models.OutreachEvent, error)
	CreateEvent(ctx context.Context, event *models.OutreachEvent) error
	SaveEvent(ctx context.Context, event *models.OutreachEvent) error
}

// Store is the durable state the engine reads and writes.
type Store interface {
	EventStore

	// ClaimDue leases up to limit due enrollments, oldest next_send_at first.
	// Rows leased by another pass are not returned.
	ClaimDue(ctx context.Context, now time.Time, limit int, owner string, lease time.Duration) ([]models.Enrollment, error)
	// SaveEnrollment writes the engine-owned columns and releases the lease.
	// It fails with ErrLeaseLost when the caller no longer holds the lease.
	SaveEnrollment(ctx context.Context, e *models.Enrollment) error

	// LoadSequence returns the sequence with steps sorted by order and their
	// templates loaded.
	LoadSequence(ctx context.Context, id uint) (*models.Sequence, error)
	LoadInvestor(ctx context.Context, id uint) (*models.Investor, error)

	GetEnrollment(ctx context.Context, id uint) (*models.Enrollment, error)
	// UpdateEnrollmentStatus writes status and retry bookkeeping for operator
	// transitions. The row must still be in status from and unleased;
	// otherwise it fails with ErrEnrollmentBusy.
	UpdateEnrollmentStatus(ctx context.Context, e *models.Enrollment, from models.EnrollmentStatus, now time.Time) error

	Stats(ctx context.Context, now time.Time) (*ProcessingStats, error)
}

// ProcessingStats is the read-only operational view of the engine.
type ProcessingStats struct {
	ActiveEnrollments  int64     `json:"active_enrollments"`
	DueNow             int64     `json:"due_now"` // claimable now; rows leased by a running pass are excluded
	SentToday          int64     `json:"sent_today"`
	PausedEnrollments  int64     `json:"paused_enrollments"`
	FailedEnrollments  int64     `json:"failed_enrollments"`
	StalledEnrollments int64     `json:"stalled_enrollments"`
	GeneratedAt        time.Time `json:"generated_at"`
}
