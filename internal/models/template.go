package models

import "time"

// Template is a reusable, administrator-authored checklist definition.
type Template struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	Tasks []TemplateTask `db:"-" json:"tasks,omitempty"`
}

// TemplateTask is one ordered line item of a template.
type TemplateTask struct {
	ID          string `db:"id" json:"id"`
	TemplateID  string `db:"template_id" json:"template_id"`
	Description string `db:"description" json:"description"`
	Position    int    `db:"position" json:"position"`
}
