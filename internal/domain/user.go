package domain

import "time"

// User is an account in the user directory.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the authenticated identity a guard resolves for one request.
// DeviceID scopes the session: the same user may hold independent sessions
// on different devices.
type Principal struct {
	UserID   int64
	DeviceID string
	Email    string
}
