package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"raiseflow/models"
)

// EnrollmentService applies operator status changes. It never moves the
// cursor or reschedules; those belong to the scheduler.
type EnrollmentService struct {
	store Store
	log   *logrus.Entry
	now   func() time.Time
}

func NewEnrollmentService(store Store, log *logrus.Entry) *EnrollmentService {
	return &EnrollmentService{
		store: store,
		log:   log.WithField("component", "enrollment_service"),
		now:   time.Now,
	}
}

func (s *EnrollmentService) Get(ctx context.Context, id uint) (*models.Enrollment, error) {
	return s.store.GetEnrollment(ctx, id)
}

func (s *EnrollmentService) Pause(ctx context.Context, id uint) (*models.Enrollment, error) {
	return s.apply(ctx, id, "pause", func(e *models.Enrollment, _ time.Time) error {
		return Pause(e)
	})
}

func (s *EnrollmentService) Resume(ctx context.Context, id uint) (*models.Enrollment, error) {
	return s.apply(ctx, id, "resume", func(e *models.Enrollment, _ time.Time) error {
		return Resume(e)
	})
}

func (s *EnrollmentService) Cancel(ctx context.Context, id uint) (*models.Enrollment, error) {
	return s.apply(ctx, id, "cancel", Cancel)
}

func (s *EnrollmentService) Retry(ctx context.Context, id uint) (*models.Enrollment, error) {
	return s.apply(ctx, id, "retry", func(e *models.Enrollment, _ time.Time) error {
		return Retry(e)
	})
}

func (s *EnrollmentService) apply(ctx context.Context, id uint, op string, fn func(*models.Enrollment, time.Time) error) (*models.Enrollment, error) {
	e, err := s.store.GetEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	from := e.Status
	if err := fn(e, now); err != nil {
		return nil, err
	}
	if err := s.store.UpdateEnrollmentStatus(ctx, e, from, now); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"enrollment_id": id,
		"op":            op,
		"from":          from,
		"to":            e.Status,
	}).Info("Enrollment status changed")
	return e, nil
}
