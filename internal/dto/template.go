package dto

// TemplateTaskPayload is one checklist line in a template definition.
type TemplateTaskPayload struct {
	Description string `json:"description" validate:"required"`
	Position    int    `json:"position"`
}

// CreateTemplatePayload defines a new checklist template with its tasks.
type CreateTemplatePayload struct {
	Name        string                `json:"name" validate:"required"`
	Description string                `json:"description"`
	Tasks       []TemplateTaskPayload `json:"tasks" validate:"required,min=1,dive"`
}

// UpdateTemplatePayload replaces a template's metadata and task list.
type UpdateTemplatePayload struct {
	Name        string                `json:"name" validate:"required"`
	Description string                `json:"description"`
	Tasks       []TemplateTaskPayload `json:"tasks" validate:"required,min=1,dive"`
}
