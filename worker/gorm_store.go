package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"raiseflow/models"
	"raiseflow/utils"
)

// GormStore is the Postgres-backed Store.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) ClaimDue(ctx context.Context, now time.Time, limit int, owner string, lease time.Duration) ([]models.Enrollment, error) {
	var claimed []models.Enrollment

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_send_at <= ?", models.EnrollmentActive, now).
			Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
			Order("next_send_at ASC, id ASC").
			Limit(limit).
			Find(&claimed).Error; err != nil {
			return fmt.Errorf("select due enrollments: %w", err)
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]uint, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
		}

		until := now.Add(lease)
		if err := tx.Model(&models.Enrollment{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"claimed_by":    owner,
				"claimed_until": until,
			}).Error; err != nil {
			return fmt.Errorf("lease due enrollments: %w", err)
		}

		for i := range claimed {
			claimed[i].ClaimedBy = owner
			claimed[i].ClaimedUntil = &until
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *GormStore) SaveEnrollment(ctx context.Context, e *models.Enrollment) error {
	if e.ClaimedBy == "" {
		return fmt.Errorf("%w: enrollment %d is not claimed", ErrLeaseLost, e.ID)
	}

	res := s.DB.WithContext(ctx).Model(&models.Enrollment{}).
		Where("id = ? AND claimed_by = ?", e.ID, e.ClaimedBy).
		Updates(map[string]interface{}{
			"status":             e.Status,
			"current_step_order": e.CurrentStepOrder,
			"next_send_at":       e.NextSendAt,
			"started_at":         e.StartedAt,
			"completed_at":       e.CompletedAt,
			"failed_at":          e.FailedAt,
			"attempt_count":      e.AttemptCount,
			"skip_count":         e.SkipCount,
			"last_error":         e.LastError,
			"last_attempt_at":    e.LastAttemptAt,
			"claimed_by":         "",
			"claimed_until":      nil,
		})
	if res.Error != nil {
		return fmt.Errorf("save enrollment %d: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: enrollment %d", ErrLeaseLost, e.ID)
	}

	e.ClaimedBy = ""
	e.ClaimedUntil = nil
	return nil
}

func (s *GormStore) LoadSequence(ctx context.Context, id uint) (*models.Sequence, error) {
	var seq models.Sequence
	err := s.DB.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Preload("Steps.Template").
		First(&seq, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrSequenceNotFound, id)
		}
		return nil, fmt.Errorf("load sequence %d: %w", id, err)
	}
	return &seq, nil
}

func (s *GormStore) LoadInvestor(ctx context.Context, id uint) (*models.Investor, error) {
	var investor models.Investor
	if err := s.DB.WithContext(ctx).First(&investor, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrInvestorNotFound, id)
		}
		return nil, fmt.Errorf("load investor %d: %w", id, err)
	}
	return &investor, nil
}

func (s *GormStore) FindExecutedEvent(ctx context.Context, enrollmentID, stepID uint) (*models.OutreachEvent, error) {
	var events []models.OutreachEvent
	if err := s.DB.WithContext(ctx).
		Where("enrollment_id = ? AND step_id = ? AND status <> ?", enrollmentID, stepID, models.OutreachBounced).
		Order("id DESC").
		Limit(1).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("find outreach event: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (s *GormStore) CreateEvent(ctx context.Context, event *models.OutreachEvent) error {
	if err := s.DB.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create outreach event: %w", err)
	}
	return nil
}

func (s *GormStore) SaveEvent(ctx context.Context, event *models.OutreachEvent) error {
	if err := s.DB.WithContext(ctx).Save(event).Error; err != nil {
		return fmt.Errorf("save outreach event %d: %w", event.ID, err)
	}
	return nil
}

func (s *GormStore) GetEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := s.DB.WithContext(ctx).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrEnrollmentNotFound, id)
		}
		return nil, fmt.Errorf("get enrollment %d: %w", id, err)
	}
	return &e, nil
}

func (s *GormStore) UpdateEnrollmentStatus(ctx context.Context, e *models.Enrollment, from models.EnrollmentStatus, now time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", e.ID, from).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Updates(map[string]interface{}{
			"status":        e.Status,
			"attempt_count": e.AttemptCount,
			"skip_count":    e.SkipCount,
			"last_error":    e.LastError,
			"cancelled_at":  e.CancelledAt,
			"failed_at":     e.FailedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update enrollment %d status: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrEnrollmentBusy, e.ID)
	}
	return nil
}

func (s *GormStore) Stats(ctx context.Context, now time.Time) (*ProcessingStats, error) {
	db := s.DB.WithContext(ctx)
	stats := &ProcessingStats{GeneratedAt: now}

	var byStatus []struct {
		Status models.EnrollmentStatus
		Count  int64
	}
	if err := db.Model(&models.Enrollment{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	for _, row := range byStatus {
		switch row.Status {
		case models.EnrollmentActive:
			stats.ActiveEnrollments = row.Count
		case models.EnrollmentPaused:
			stats.PausedEnrollments = row.Count
		case models.EnrollmentFailed:
			stats.FailedEnrollments = row.Count
		}
	}

	if err := db.Model(&models.Enrollment{}).
		Where("status = ? AND next_send_at <= ?", models.EnrollmentActive, now).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Count(&stats.DueNow).Error; err != nil {
		return nil, fmt.Errorf("count due enrollments: %w", err)
	}

	if err := db.Model(&models.Enrollment{}).
		Where("status = ? AND skip_count > 0", models.EnrollmentActive).
		Count(&stats.StalledEnrollments).Error; err != nil {
		return nil, fmt.Errorf("count stalled enrollments: %w", err)
	}

	if err := db.Model(&models.OutreachEvent{}).
		Where("sent_at >= ?", utils.StartOfDay(now)).
		Count(&stats.SentToday).Error; err != nil {
		return nil, fmt.Errorf("count sent today: %w", err)
	}

	return stats, nil
}
