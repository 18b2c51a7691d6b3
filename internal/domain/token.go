package domain

import "time"

// Claims is the payload bound inside both token classes.
type Claims struct {
	UserID    int64
	DeviceID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is one issued access/refresh pair for a device session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RefreshSession is the durable record of the single valid refresh token
// per (user, device) pair.
type RefreshSession struct {
	UserID       int64
	DeviceID     string
	RefreshToken string
	CreatedAt    time.Time
}
