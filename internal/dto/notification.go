package dto

// MarkReadPayload marks specific notifications, or all of them, as read.
type MarkReadPayload struct {
	IDs     []string `json:"ids"`
	MarkAll bool     `json:"mark_all"`
}
