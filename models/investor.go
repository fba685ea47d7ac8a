package models

import (
	"strings"

	"gorm.io/gorm"
)

// Investor is the outreach target. A nil or blank Email disables email steps.
type Investor struct {
	gorm.Model
	Email *string `gorm:"index" json:"email"`
	Name  string  `gorm:"not null" json:"name"`
	Firm  string  `json:"firm"`
	Title string  `json:"title"`
}

// ContactEmail returns the trimmed email address and whether one is present.
func (i *Investor) ContactEmail() (string, bool) {
	if i.Email == nil {
		return "", false
	}
	email := strings.TrimSpace(*i.Email)
	return email, email != ""
}

// FirstName is the first whitespace-delimited token of Name.
func (i *Investor) FirstName() string {
	fields := strings.Fields(i.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
