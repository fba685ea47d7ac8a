package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"raiseflow/metrics"
	"raiseflow/models"
	"raiseflow/utils"
)

var ErrPassInProgress = errors.New("another scheduler pass is in progress")

const DefaultBatchSize = 100

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

type EnrollmentResult struct {
	EnrollmentID uint    `json:"enrollment_id"`
	Outcome      Outcome `json:"outcome"`
	Message      string  `json:"message"`
}

// BatchResult summarizes one scheduler pass.
type BatchResult struct {
	Processed  int                `json:"processed"`
	Sent       int                `json:"sent"`
	Skipped    int                `json:"skipped"`
	Errors     int                `json:"errors"`
	Details    []EnrollmentResult `json:"details"`
	StartedAt  time.Time          `json:"started_at"`
	DurationMS int64              `json:"duration_ms"`
}

func (r *BatchResult) add(res EnrollmentResult) {
	r.Processed++
	switch res.Outcome {
	case OutcomeSent:
		r.Sent++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeError:
		r.Errors++
	}
	r.Details = append(r.Details, res)
}

type ProcessorConfig struct {
	BatchSize     int
	LeaseDuration time.Duration
	Retry         RetryPolicy
}

// SequenceProcessor runs scheduler passes over due enrollments.
type SequenceProcessor struct {
	store    Store
	executor *StepExecutor
	lock     PassLock
	cfg      ProcessorConfig
	log      *logrus.Entry

	now      func() time.Time
	newOwner func() string
	onPass   []func(*BatchResult)
}

// NewSequenceProcessor wires a processor. lock may be nil for single-process
// deployments.
func NewSequenceProcessor(store Store, executor *StepExecutor, lock PassLock, cfg ProcessorConfig, log *logrus.Entry) *SequenceProcessor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}
	return &SequenceProcessor{
		store:    store,
		executor: executor,
		lock:     lock,
		cfg:      cfg,
		log:      log.WithField("component", "sequence_processor"),
		now:      time.Now,
		newOwner: func() string { return uuid.NewString() },
	}
}

// OnPass registers a callback invoked with every completed pass.
func (p *SequenceProcessor) OnPass(fn func(*BatchResult)) {
	p.onPass = append(p.onPass, fn)
}

// ProcessDue runs one scheduler pass. A failing enrollment never aborts the
// pass; only failure to claim work does.
func (p *SequenceProcessor) ProcessDue(ctx context.Context) (*BatchResult, error) {
	started := p.now()
	owner := p.newOwner()
	log := p.log.WithField("pass", owner)

	if p.lock != nil {
		ok, err := p.lock.Acquire(ctx, owner, p.cfg.LeaseDuration)
		if err != nil {
			metrics.ObservePass("error", 0)
			return nil, err
		}
		if !ok {
			metrics.ObservePass("locked", 0)
			return nil, ErrPassInProgress
		}
		defer func() {
			if err := p.lock.Release(context.WithoutCancel(ctx), owner); err != nil {
				log.WithError(err).Warn("Failed to release pass lock")
			}
		}()
	}

	due, err := p.store.ClaimDue(ctx, started, p.cfg.BatchSize, owner, p.cfg.LeaseDuration)
	if err != nil {
		metrics.ObservePass("error", p.now().Sub(started))
		utils.LogError(log, "claim_due_failed", err, nil)
		return nil, fmt.Errorf("claim due enrollments: %w", err)
	}

	result := &BatchResult{
		Details:   make([]EnrollmentResult, 0, len(due)),
		StartedAt: started,
	}
	sequences := make(map[uint]*models.Sequence)

	for i := range due {
		if ctx.Err() != nil {
			log.WithField("remaining", len(due)-i).Warn("Pass cancelled, leaving remaining leases to expire")
			break
		}
		res := p.processEnrollment(ctx, &due[i], sequences)
		metrics.ObserveOutcome(string(res.Outcome))
		result.add(res)
	}

	elapsed := p.now().Sub(started)
	result.DurationMS = elapsed.Milliseconds()
	metrics.ObservePass("ok", elapsed)

	if result.Processed > 0 {
		utils.LogEvent(log, "scheduler_pass", map[string]interface{}{
			"processed": result.Processed,
			"sent":      result.Sent,
			"skipped":   result.Skipped,
			"errors":    result.Errors,
			"duration":  utils.FormatDuration(elapsed),
		})
	}

	for _, fn := range p.onPass {
		fn(result)
	}
	return result, nil
}

// Stats reports operational counts as of now.
func (p *SequenceProcessor) Stats(ctx context.Context) (*ProcessingStats, error) {
	return p.store.Stats(ctx, p.now())
}

func (p *SequenceProcessor) processEnrollment(ctx context.Context, e *models.Enrollment, sequences map[uint]*models.Sequence) (res EnrollmentResult) {
	res.EnrollmentID = e.ID
	log := p.log.WithFields(logrus.Fields{
		"enrollment_id": e.ID,
		"sequence_id":   e.SequenceID,
		"step":          e.CurrentStepOrder,
	})

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			utils.LogError(log, "enrollment_panic", err, nil)
			res = EnrollmentResult{EnrollmentID: e.ID, Outcome: OutcomeError, Message: err.Error()}
		}
	}()

	now := p.now()

	// Another pass may already have re-claimed a row whose lease ran out
	// while earlier rows were processed.
	if e.ClaimedUntil != nil && !e.ClaimedUntil.After(now) {
		log.Warn("Lease expired before processing")
		return EnrollmentResult{EnrollmentID: e.ID, Outcome: OutcomeError, Message: "lease expired before processing, left for the next pass"}
	}

	seq, ok := sequences[e.SequenceID]
	if !ok {
		loaded, err := p.store.LoadSequence(ctx, e.SequenceID)
		if err != nil {
			return p.failed(ctx, log, e, now, err)
		}
		seq = loaded
		sequences[e.SequenceID] = seq
	}

	if !seq.IsActive() {
		if err := Pause(e); err != nil {
			return p.failed(ctx, log, e, now, err)
		}
		return p.finish(ctx, log, e, OutcomeSkipped, fmt.Sprintf("sequence %d is %s, enrollment paused", seq.ID, seq.Status))
	}

	step, ok := seq.StepAt(e.CurrentStepOrder)
	if !ok {
		if err := Complete(e, now); err != nil {
			return p.failed(ctx, log, e, now, err)
		}
		return p.finish(ctx, log, e, OutcomeSkipped, "no remaining steps, enrollment completed")
	}

	investor, err := p.store.LoadInvestor(ctx, e.InvestorID)
	if err != nil {
		return p.failed(ctx, log, e, now, err)
	}

	out, err := p.executor.Execute(ctx, StepInput{
		Enrollment: e,
		Sequence:   seq,
		Step:       step,
		Investor:   investor,
		Now:        now,
	})
	if errors.Is(err, ErrNoContactMethod) {
		msg := fmt.Sprintf("step %d skipped: %v", step.StepOrder, err)
		if p.cfg.Retry.RecordSkip(e, now, err) {
			msg += "; enrollment failed after repeated skips"
		}
		return p.finish(ctx, log, e, OutcomeSkipped, msg)
	}
	if err != nil {
		return p.failed(ctx, log, e, now, fmt.Errorf("step %d (%s): %w", step.StepOrder, step.Type, err))
	}

	if err := Advance(e, seq, now); err != nil {
		return p.failed(ctx, log, e, now, err)
	}
	if err := p.store.SaveEnrollment(ctx, e); err != nil {
		// The event is already recorded; the next pass recovers from it.
		utils.LogError(log, "advance_not_saved", err, map[string]interface{}{"step_id": step.ID})
		return EnrollmentResult{EnrollmentID: e.ID, Outcome: OutcomeError, Message: fmt.Sprintf("%s, but advancement not saved: %v", out.Summary, err)}
	}

	log.WithField("recovered", out.Recovered).Info(out.Summary)
	return EnrollmentResult{EnrollmentID: e.ID, Outcome: OutcomeSent, Message: out.Summary}
}

// finish persists the enrollment and releases its lease.
func (p *SequenceProcessor) finish(ctx context.Context, log *logrus.Entry, e *models.Enrollment, outcome Outcome, msg string) EnrollmentResult {
	if err := p.store.SaveEnrollment(ctx, e); err != nil {
		utils.LogError(log, "save_enrollment_failed", err, nil)
		return EnrollmentResult{EnrollmentID: e.ID, Outcome: OutcomeError, Message: fmt.Sprintf("%s, but not saved: %v", msg, err)}
	}
	log.Info(msg)
	return EnrollmentResult{EnrollmentID: e.ID, Outcome: outcome, Message: msg}
}

// failed books a failed attempt against the retry budget and reports it.
func (p *SequenceProcessor) failed(ctx context.Context, log *logrus.Entry, e *models.Enrollment, now time.Time, cause error) EnrollmentResult {
	msg := cause.Error()
	if p.cfg.Retry.RecordFailure(e, now, cause) {
		msg = fmt.Sprintf("%s; enrollment failed after %d attempts", msg, e.AttemptCount)
	} else if e.NextSendAt != nil && e.NextSendAt.After(now) {
		msg = fmt.Sprintf("%s; retry in %s", msg, utils.FormatDuration(e.NextSendAt.Sub(now)))
	}

	utils.LogError(log, "enrollment_step_failed", cause, map[string]interface{}{"attempt": e.AttemptCount})
	if err := p.store.SaveEnrollment(ctx, e); err != nil {
		utils.LogError(log, "save_enrollment_failed", err, nil)
		msg = fmt.Sprintf("%s; bookkeeping not saved: %v", msg, err)
	}
	return EnrollmentResult{EnrollmentID: e.ID, Outcome: OutcomeError, Message: msg}
}
