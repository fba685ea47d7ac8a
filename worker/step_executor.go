package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"

	"raiseflow/metrics"
	"raiseflow/models"
	"raiseflow/utils"
)

var (
	// ErrNoContactMethod means the step cannot run for this investor. The
	// enrollment is skipped without moving its cursor.
	ErrNoContactMethod = errors.New("investor has no usable email address")
	ErrGatewayFailed   = errors.New("gateway send failed")
)

// StepInput is everything needed to run the step under an enrollment's cursor.
type StepInput struct {
	Enrollment *models.Enrollment
	Sequence   *models.Sequence
	Step       *models.SequenceStep
	Investor   *models.Investor
	Now        time.Time
}

// StepOutcome describes a step that ran, or was found to have run already.
type StepOutcome struct {
	Event     *models.OutreachEvent
	Recovered bool
	Summary   string
}

type ExecutorConfig struct {
	FromEmail      string
	FromName       string
	GatewayTimeout time.Duration
}

// StepExecutor runs one step for one enrollment. It never touches the
// enrollment row; advancing the cursor is the processor's job.
type StepExecutor struct {
	events  EventStore
	gateway utils.Gateway
	tracker *utils.Tracker
	cfg     ExecutorConfig
	log     *logrus.Entry
}

func NewStepExecutor(events EventStore, gateway utils.Gateway, tracker *utils.Tracker, cfg ExecutorConfig, log *logrus.Entry) *StepExecutor {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	return &StepExecutor{
		events:  events,
		gateway: gateway,
		tracker: tracker,
		cfg:     cfg,
		log:     log.WithField("component", "step_executor"),
	}
}

func (x *StepExecutor) Execute(ctx context.Context, in StepInput) (StepOutcome, error) {
	action, err := in.Step.Action()
	if err != nil {
		return StepOutcome{}, err
	}

	d := &stepDispatch{ctx: ctx, x: x, in: in}
	if err := action.Accept(d); err != nil {
		return StepOutcome{}, err
	}
	return d.outcome, nil
}

var _ models.StepVisitor = (*stepDispatch)(nil)

// stepDispatch is the per-execution StepVisitor.
type stepDispatch struct {
	ctx     context.Context
	x       *StepExecutor
	in      StepInput
	outcome StepOutcome
}

func (d *stepDispatch) VisitEmail(step models.EmailStep) error {
	if done, err := d.alreadyExecuted(); err != nil || done {
		return err
	}

	recipient, ok := d.in.Investor.ContactEmail()
	if !ok {
		return fmt.Errorf("%w: investor %d has no email", ErrNoContactMethod, d.in.Investor.ID)
	}
	if err := checkmail.ValidateFormat(recipient); err != nil {
		return fmt.Errorf("%w: investor %d email %q: %v", ErrNoContactMethod, d.in.Investor.ID, recipient, err)
	}

	subject, content := d.render(step.Message)
	event := d.newEvent(models.StepEmail, recipient, subject, content)
	if err := d.x.events.CreateEvent(d.ctx, event); err != nil {
		return err
	}

	from, fromName := d.sender()
	msg := utils.OutboundMessage{
		To:       recipient,
		From:     from,
		FromName: fromName,
		Subject:  subject,
		HTMLBody: d.x.tracker.Wrap(content, strconv.FormatUint(uint64(event.ID), 10)),
	}

	sendCtx, cancel := context.WithTimeout(d.ctx, d.x.cfg.GatewayTimeout)
	defer cancel()

	res, sendErr := d.x.gateway.Send(sendCtx, msg)
	metrics.ObserveSend(sendErr == nil)
	now := d.in.Now
	if sendErr != nil {
		failure := fmt.Errorf("%w: %w", ErrGatewayFailed, sendErr)
		reason := sendErr.Error()
		event.Status = models.OutreachBounced
		event.BouncedAt = &now
		event.Error = &reason
		if err := d.x.events.SaveEvent(d.ctx, event); err != nil {
			return errors.Join(failure, err)
		}
		return failure
	}

	event.Status = models.OutreachSent
	event.SentAt = &now
	event.MessageID = res.MessageID
	if err := d.x.events.SaveEvent(d.ctx, event); err != nil {
		return fmt.Errorf("email %s accepted but not recorded: %w", res.MessageID, err)
	}

	d.outcome = StepOutcome{Event: event, Summary: fmt.Sprintf("email sent to %s", recipient)}
	return nil
}

func (d *stepDispatch) VisitLinkedIn(step models.LinkedInStep) error {
	return d.logManual(models.StepLinkedIn, step.Message, "linkedin step recorded for manual follow-up")
}

func (d *stepDispatch) VisitTask(step models.TaskStep) error {
	return d.logManual(models.StepTask, step.Message, "task recorded")
}

func (d *stepDispatch) VisitWait(models.WaitStep) error {
	d.outcome = StepOutcome{Summary: "wait elapsed"}
	return nil
}

// logManual records a step that a human carries out.
func (d *stepDispatch) logManual(channel models.StepType, m models.Message, summary string) error {
	if done, err := d.alreadyExecuted(); err != nil || done {
		return err
	}

	subject, content := d.render(m)
	event := d.newEvent(channel, d.in.Investor.Name, subject, content)
	if err := d.x.events.CreateEvent(d.ctx, event); err != nil {
		return err
	}

	d.outcome = StepOutcome{Event: event, Summary: summary}
	return nil
}

// alreadyExecuted looks for an event left by an earlier pass that ran the
// step but could not advance the enrollment.
func (d *stepDispatch) alreadyExecuted() (bool, error) {
	event, err := d.x.events.FindExecutedEvent(d.ctx, d.in.Enrollment.ID, d.in.Step.ID)
	if err != nil {
		return false, err
	}
	if event == nil || bookedAsFailed(d.in.Enrollment, event) {
		return false, nil
	}

	d.x.log.WithFields(logrus.Fields{
		"enrollment_id": d.in.Enrollment.ID,
		"step_id":       d.in.Step.ID,
		"event_id":      event.ID,
	}).Warn("Step already executed, advancing without resending")

	d.outcome = StepOutcome{
		Event:     event,
		Recovered: true,
		Summary:   fmt.Sprintf("step already executed (event %d)", event.ID),
	}
	return true, nil
}

// bookedAsFailed reports whether the event belongs to an attempt the
// enrollment already counted as failed, e.g. a bounce whose status update was
// lost. LastAttemptAt survives an operator retry; AttemptCount does not.
func bookedAsFailed(e *models.Enrollment, event *models.OutreachEvent) bool {
	if event.Attempt <= e.AttemptCount {
		return true
	}
	return e.LastAttemptAt != nil && !event.ScheduledAt.After(*e.LastAttemptAt)
}

func (d *stepDispatch) render(m models.Message) (string, string) {
	vars := utils.InvestorVars(d.in.Investor)
	return utils.RenderTemplate(m.Subject, vars), utils.RenderTemplate(m.Content, vars)
}

func (d *stepDispatch) sender() (string, string) {
	from, name := d.x.cfg.FromEmail, d.x.cfg.FromName
	if d.in.Sequence.FromEmail != "" {
		from = d.in.Sequence.FromEmail
	}
	if d.in.Sequence.FromName != "" {
		name = d.in.Sequence.FromName
	}
	return from, name
}

func (d *stepDispatch) newEvent(channel models.StepType, recipient, subject, content string) *models.OutreachEvent {
	e := d.in.Enrollment
	return &models.OutreachEvent{
		EnrollmentID: e.ID,
		StepID:       d.in.Step.ID,
		InvestorID:   e.InvestorID,
		CampaignID:   e.CampaignID,
		Channel:      channel,
		Status:       models.OutreachScheduled,
		Recipient:    recipient,
		Subject:      subject,
		Content:      content,
		Attempt:      e.AttemptCount + 1,
		ScheduledAt:  d.in.Now,
	}
}
