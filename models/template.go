package models

import "gorm.io/gorm"

// Template holds reusable subject/body strings referenced by sequence steps.
type Template struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Subject     string `gorm:"not null" json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`
	TextContent string `gorm:"type:text" json:"text_content"`
	Category    string `json:"category"`
}
