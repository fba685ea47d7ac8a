package models

import (
	"time"

	"gorm.io/gorm"
)

type OutreachStatus string

const (
	OutreachScheduled OutreachStatus = "scheduled"
	OutreachSent      OutreachStatus = "sent"
	OutreachOpened    OutreachStatus = "opened"
	OutreachClicked   OutreachStatus = "clicked"
	OutreachReplied   OutreachStatus = "replied"
	OutreachBounced   OutreachStatus = "bounced"
)

// OutreachEvent records one executed (or attempted) email, linkedin or task
// step. Wait steps never produce one.
type OutreachEvent struct {
	gorm.Model
	EnrollmentID uint  `gorm:"not null;index:idx_outreach_enrollment_step,priority:1" json:"enrollment_id"`
	StepID       uint  `gorm:"not null;index:idx_outreach_enrollment_step,priority:2" json:"step_id"`
	InvestorID   uint  `gorm:"not null;index" json:"investor_id"`
	CampaignID   *uint `gorm:"index" json:"campaign_id,omitempty"`

	Channel StepType       `gorm:"type:varchar(16);not null" json:"channel"`
	Status  OutreachStatus `gorm:"type:varchar(16);default:'scheduled';index" json:"status"` // scheduled, sent, opened, clicked, replied, bounced

	Recipient string  `json:"recipient"`
	Subject   string  `json:"subject"`
	Content   string  `gorm:"type:text" json:"content"`
	MessageID string  `gorm:"index" json:"message_id"`
	Attempt   int     `gorm:"default:1" json:"attempt"`
	Error     *string `gorm:"type:text" json:"error"`

	ScheduledAt time.Time  `gorm:"not null" json:"scheduled_at"`
	SentAt      *time.Time `gorm:"index" json:"sent_at"`
	OpenedAt    *time.Time `json:"opened_at"`
	ClickedAt   *time.Time `json:"clicked_at"`
	RepliedAt   *time.Time `json:"replied_at"`
	BouncedAt   *time.Time `json:"bounced_at"`
}

// Executed reports whether the event counts as a completed execution of its
// step. Anything short of a bounce does.
func (o *OutreachEvent) Executed() bool {
	return o.Status != OutreachBounced
}
