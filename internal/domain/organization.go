package domain

import "time"

// Organization is a billing tenant shared by its members.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateOrganizationRequest registers an organization so it can hold subscriptions.
type CreateOrganizationRequest struct {
	ID        string `json:"id" validate:"omitempty,max=64"`
	Name      string `json:"name" validate:"required,min=2,max=100"`
	CreatedBy string `json:"createdBy" validate:"required"`
}
