package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign optionally scopes enrollments to a fundraising round.
type Campaign struct {
	gorm.Model
	Name        string     `gorm:"not null" json:"name"`
	Description string     `json:"description"`
	Status      string     `gorm:"default:'draft'" json:"status"` // draft, active, closed
	StartedAt   *time.Time `json:"started_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}
