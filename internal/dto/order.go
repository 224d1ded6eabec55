package dto

import "github.com/optifire/inspection-api/internal/models"

// TaskUpdate carries the technician's result for one order task.
type TaskUpdate struct {
	TaskID      string            `json:"task_id" validate:"required"`
	Result      models.TaskResult `json:"result" validate:"required"`
	Observation string            `json:"observation"`
}

// SaveProgressPayload applies partial checklist updates without finishing.
type SaveProgressPayload struct {
	Tasks    []TaskUpdate `json:"tasks"`
	Comments string       `json:"comments"`
}

// FinishOrderPayload applies the final checklist state and closes the order.
type FinishOrderPayload struct {
	Tasks    []TaskUpdate `json:"tasks"`
	Comments string       `json:"comments"`
}
