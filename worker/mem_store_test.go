package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"raiseflow/models"
	"raiseflow/utils"
)

// memStore is an in-memory Store with the same lease semantics as GormStore.
type memStore struct {
	mu          sync.Mutex
	sequences   map[uint]*models.Sequence
	investors   map[uint]*models.Investor
	enrollments map[uint]*models.Enrollment
	events      []models.OutreachEvent

	// saveEnrollmentErr and saveEventErr, when set, fail the next
	// SaveEnrollment or SaveEvent call.
	saveEnrollmentErr error
	saveEventErr      error
	claimErr          error
}

func newMemStore() *memStore {
	return &memStore{
		sequences:   make(map[uint]*models.Sequence),
		investors:   make(map[uint]*models.Investor),
		enrollments: make(map[uint]*models.Enrollment),
	}
}

func (s *memStore) addSequence(seq *models.Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(seq.Steps, func(i, j int) bool { return seq.Steps[i].StepOrder < seq.Steps[j].StepOrder })
	s.sequences[seq.ID] = seq
}

func (s *memStore) addInvestor(inv *models.Investor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.investors[inv.ID] = inv
}

func (s *memStore) addEnrollment(e *models.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[e.ID] = e
}

func (s *memStore) setSequenceStatus(id uint, status models.SequenceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[id].Status = status
}

func (s *memStore) enrollment(id uint) models.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.enrollments[id]
}

func (s *memStore) eventsFor(enrollmentID uint) []models.OutreachEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OutreachEvent
	for _, ev := range s.events {
		if ev.EnrollmentID == enrollmentID {
			out = append(out, ev)
		}
	}
	return out
}

func (s *memStore) ClaimDue(_ context.Context, now time.Time, limit int, owner string, lease time.Duration) ([]models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}

	var due []*models.Enrollment
	for _, e := range s.enrollments {
		if e.IsDue(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextSendAt.Equal(*due[j].NextSendAt) {
			return due[i].NextSendAt.Before(*due[j].NextSendAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}

	until := now.Add(lease)
	out := make([]models.Enrollment, 0, len(due))
	for _, e := range due {
		e.ClaimedBy = owner
		e.ClaimedUntil = &until
		out = append(out, *e)
	}
	return out, nil
}

func (s *memStore) SaveEnrollment(_ context.Context, e *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveEnrollmentErr; err != nil {
		s.saveEnrollmentErr = nil
		return err
	}

	stored, ok := s.enrollments[e.ID]
	if !ok || e.ClaimedBy == "" || stored.ClaimedBy != e.ClaimedBy {
		return ErrLeaseLost
	}
	cp := *e
	cp.ClaimedBy = ""
	cp.ClaimedUntil = nil
	*stored = cp

	e.ClaimedBy = ""
	e.ClaimedUntil = nil
	return nil
}

func (s *memStore) LoadSequence(_ context.Context, id uint) (*models.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if !ok {
		return nil, ErrSequenceNotFound
	}
	cp := *seq
	return &cp, nil
}

func (s *memStore) LoadInvestor(_ context.Context, id uint) (*models.Investor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.investors[id]
	if !ok {
		return nil, ErrInvestorNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *memStore) FindExecutedEvent(_ context.Context, enrollmentID, stepID uint) (*models.OutreachEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if ev.EnrollmentID == enrollmentID && ev.StepID == stepID && ev.Executed() {
			return &ev, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateEvent(_ context.Context, event *models.OutreachEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = uint(len(s.events) + 1)
	s.events = append(s.events, *event)
	return nil
}

func (s *memStore) SaveEvent(_ context.Context, event *models.OutreachEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveEventErr; err != nil {
		s.saveEventErr = nil
		return err
	}
	s.events[event.ID-1] = *event
	return nil
}

func (s *memStore) GetEnrollment(_ context.Context, id uint) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, ErrEnrollmentNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) UpdateEnrollmentStatus(_ context.Context, e *models.Enrollment, from models.EnrollmentStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.enrollments[e.ID]
	if !ok {
		return ErrEnrollmentNotFound
	}
	if stored.Status != from || (stored.ClaimedUntil != nil && stored.ClaimedUntil.After(now)) {
		return ErrEnrollmentBusy
	}
	stored.Status = e.Status
	stored.AttemptCount = e.AttemptCount
	stored.SkipCount = e.SkipCount
	stored.LastError = e.LastError
	stored.CancelledAt = e.CancelledAt
	stored.FailedAt = e.FailedAt
	return nil
}

func (s *memStore) Stats(_ context.Context, now time.Time) (*ProcessingStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &ProcessingStats{GeneratedAt: now}
	for _, e := range s.enrollments {
		switch e.Status {
		case models.EnrollmentActive:
			stats.ActiveEnrollments++
			if e.IsDue(now) {
				stats.DueNow++
			}
			if e.SkipCount > 0 {
				stats.StalledEnrollments++
			}
		case models.EnrollmentPaused:
			stats.PausedEnrollments++
		case models.EnrollmentFailed:
			stats.FailedEnrollments++
		}
	}
	dayStart := utils.StartOfDay(now)
	for _, ev := range s.events {
		if ev.SentAt != nil && !ev.SentAt.Before(dayStart) {
			stats.SentToday++
		}
	}
	return stats, nil
}
