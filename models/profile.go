package models

import "time"

// Profile is the remote record attached to a local account.
type Profile struct {
	UserID           string     `json:"user_id"`
	DisplayName      string     `json:"display_name"`
	Email            string     `json:"email"`
	LicenseKey       string     `json:"-"`
	LicensePlan      string     `json:"license_plan,omitempty"`
	LicenseExpiresAt *time.Time `json:"license_expires_at,omitempty"`
	LicenseActive    bool       `json:"license_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Email       string `json:"email" binding:"omitempty,email"`
}

type ActivateLicenseRequest struct {
	Key string `json:"key" binding:"required"`
}
