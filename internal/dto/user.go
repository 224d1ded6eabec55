package dto

import "github.com/optifire/inspection-api/internal/models"

// CreateUserPayload registers a new principal with a fixed role.
type CreateUserPayload struct {
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=6"`
	FullName string          `json:"full_name" validate:"required"`
	Phone    string          `json:"phone"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN TECHNICIAN CLIENT"`
}

// UpdateUserPayload modifies profile fields; the role only changes through an
// explicit administrative action.
type UpdateUserPayload struct {
	FullName string           `json:"full_name"`
	Phone    string           `json:"phone"`
	Role     *models.UserRole `json:"role" validate:"omitempty,oneof=ADMIN TECHNICIAN CLIENT"`
	Active   *bool            `json:"active"`
}
