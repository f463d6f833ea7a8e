package models

import "time"

// Principal is the authenticated caller. Identity comes from the external auth
// provider; this service only sees the opaque subject.
type Principal struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
