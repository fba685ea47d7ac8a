package worker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"raiseflow/models"
	"raiseflow/utils"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Send(ctx context.Context, msg utils.OutboundMessage) (utils.SendResult, error) {
	args := m.Called(ctx, msg)
	if fn, ok := args.Get(0).(func(context.Context, utils.OutboundMessage) (utils.SendResult, error)); ok {
		return fn(ctx, msg)
	}
	return args.Get(0).(utils.SendResult), args.Error(1)
}

type stubLock struct {
	acquired bool
	err      error
	released []string
}

func (l *stubLock) Acquire(context.Context, string, time.Duration) (bool, error) {
	return l.acquired, l.err
}

func (l *stubLock) Release(_ context.Context, owner string) error {
	l.released = append(l.released, owner)
	return nil
}

type harness struct {
	store     *memStore
	gateway   *mockGateway
	processor *SequenceProcessor
	now       time.Time
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newHarness(t *testing.T, cfg ProcessorConfig) *harness {
	t.Helper()

	h := &harness{store: newMemStore(), gateway: &mockGateway{}, now: t0}
	exec := NewStepExecutor(h.store, h.gateway, utils.NewTracker("https://t.raiseflow.io/", "secret"), ExecutorConfig{
		FromEmail:      "founder@raiseflow.io",
		FromName:       "Ada Founder",
		GatewayTimeout: time.Second,
	}, testLogger())
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = time.Minute
	}
	h.processor = NewSequenceProcessor(h.store, exec, nil, cfg, testLogger())
	h.processor.now = func() time.Time { return h.now }
	return h
}

func (h *harness) pass(t *testing.T) *BatchResult {
	t.Helper()
	res, err := h.processor.ProcessDue(context.Background())
	require.NoError(t, err)
	return res
}

// outreachSequence is email, wait 3 days, linkedin.
func outreachSequence(id uint) *models.Sequence {
	return &models.Sequence{
		Model:  gorm.Model{ID: id},
		Name:   "Seed round",
		Status: models.SequenceActive,
		Steps: []models.SequenceStep{
			{
				Model:      gorm.Model{ID: id*10 + 1},
				SequenceID: id,
				StepOrder:  0,
				Type:       models.StepEmail,
				Subject:    "Hi {{investor_first_name}}",
				Content:    `<p>Hello {{ investor_name }} at {{investor_firm}}, <a href="https://deck.raiseflow.io/seed">our deck</a>.</p>`,
			},
			{
				Model:      gorm.Model{ID: id*10 + 2},
				SequenceID: id,
				StepOrder:  1,
				Type:       models.StepWait,
				DelayDays:  3,
			},
			{
				Model:      gorm.Model{ID: id*10 + 3},
				SequenceID: id,
				StepOrder:  2,
				Type:       models.StepLinkedIn,
				Content:    "Connect with {{investor_first_name}} {{unknown_token}}",
			},
		},
	}
}

func waitSequence(id uint, delays ...int) *models.Sequence {
	seq := &models.Sequence{Model: gorm.Model{ID: id}, Name: "Waits", Status: models.SequenceActive}
	for i, d := range delays {
		seq.Steps = append(seq.Steps, models.SequenceStep{
			Model:      gorm.Model{ID: id*10 + uint(i) + 1},
			SequenceID: id,
			StepOrder:  i,
			Type:       models.StepWait,
			DelayDays:  d,
		})
	}
	return seq
}

func investor(id uint, email string) *models.Investor {
	inv := &models.Investor{Model: gorm.Model{ID: id}, Name: "Jane Q Doe", Firm: "Northwind Ventures", Title: "Partner"}
	if email != "" {
		inv.Email = &email
	}
	return inv
}

func enrollment(id, sequenceID, investorID uint, at time.Time) *models.Enrollment {
	e := models.NewEnrollment(sequenceID, investorID, nil, at)
	e.ID = id
	return e
}

func sentOK(id string) utils.SendResult {
	return utils.SendResult{MessageID: id}
}
