package models

import (
	"errors"
	"fmt"
)

type StepType string

const (
	StepEmail    StepType = "email"
	StepLinkedIn StepType = "linkedin"
	StepTask     StepType = "task"
	StepWait     StepType = "wait"
)

var ErrUnknownStepType = errors.New("unknown step type")

// StepVisitor has one method per step variant. Implementations are checked
// at compile time, so adding a variant forces every dispatcher to handle it.
type StepVisitor interface {
	VisitEmail(EmailStep) error
	VisitLinkedIn(LinkedInStep) error
	VisitTask(TaskStep) error
	VisitWait(WaitStep) error
}

// StepAction is the closed set of step behaviours.
type StepAction interface {
	Accept(v StepVisitor) error
	Kind() StepType
	isStepAction()
}

// Message carries the subject and content templates of a step that produces
// an outreach event.
type Message struct {
	Subject string
	Content string
}

type EmailStep struct{ Message }

type LinkedInStep struct{ Message }

type TaskStep struct{ Message }

type WaitStep struct{}

func (s EmailStep) Accept(v StepVisitor) error    { return v.VisitEmail(s) }
func (s LinkedInStep) Accept(v StepVisitor) error { return v.VisitLinkedIn(s) }
func (s TaskStep) Accept(v StepVisitor) error     { return v.VisitTask(s) }
func (s WaitStep) Accept(v StepVisitor) error     { return v.VisitWait(s) }

func (EmailStep) Kind() StepType    { return StepEmail }
func (LinkedInStep) Kind() StepType { return StepLinkedIn }
func (TaskStep) Kind() StepType     { return StepTask }
func (WaitStep) Kind() StepType     { return StepWait }

func (EmailStep) isStepAction()    {}
func (LinkedInStep) isStepAction() {}
func (TaskStep) isStepAction()     {}
func (WaitStep) isStepAction()     {}

// Action converts the stored type column into its variant.
func (s *SequenceStep) Action() (StepAction, error) {
	subject, content := s.Body()
	msg := Message{Subject: subject, Content: content}

	switch s.Type {
	case StepEmail:
		return EmailStep{msg}, nil
	case StepLinkedIn:
		return LinkedInStep{msg}, nil
	case StepTask:
		return TaskStep{msg}, nil
	case StepWait:
		return WaitStep{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (step %d)", ErrUnknownStepType, s.Type, s.ID)
	}
}
