package models

import "gorm.io/gorm"

type SequenceStatus string

const (
	SequenceDraft  SequenceStatus = "draft"
	SequenceActive SequenceStatus = "active"
	SequencePaused SequenceStatus = "paused"
)

// Sequence is an ordered, reusable outreach workflow.
type Sequence struct {
	gorm.Model
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	Status      SequenceStatus `gorm:"type:varchar(16);default:'draft';index" json:"status"` // draft, active, paused

	// Sender identity, falls back to FROM_NAME / FROM_EMAIL when empty
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

func (s *Sequence) IsActive() bool {
	return s.Status == SequenceActive
}

// StepAt returns the step at the zero-based cursor position. Steps must be
// sorted by StepOrder.
func (s *Sequence) StepAt(cursor int) (*SequenceStep, bool) {
	if cursor < 0 || cursor >= len(s.Steps) {
		return nil, false
	}
	return &s.Steps[cursor], true
}

// SequenceStep is one action within a Sequence. DelayDays is the wait before
// this step runs, measured from the previous step's execution.
type SequenceStep struct {
	gorm.Model
	SequenceID uint     `gorm:"not null;uniqueIndex:idx_sequence_step_order" json:"sequence_id"`
	StepOrder  int      `gorm:"not null;uniqueIndex:idx_sequence_step_order" json:"order"`
	Type       StepType `gorm:"type:varchar(16);not null" json:"type"` // email, linkedin, task, wait
	DelayDays  int      `gorm:"not null;default:0;check:delay_days >= 0" json:"delay_days"`

	Subject    string `json:"subject"`
	Content    string `gorm:"type:text" json:"content"`
	TemplateID *uint  `gorm:"index" json:"template_id,omitempty"`

	// Relations
	Template *Template `json:"-"`
}

// Body returns the subject and content templates for the step, preferring
// inline values over the referenced Template.
func (s *SequenceStep) Body() (subject, content string) {
	subject, content = s.Subject, s.Content
	if s.Template != nil {
		if subject == "" {
			subject = s.Template.Subject
		}
		if content == "" {
			content = s.Template.HTMLContent
		}
	}
	return subject, content
}
