package domain

import "time"

// Session is a server-side login session. Tokens reference it by ID so
// deleting the row invalidates the token.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Token represents issued authentication token metadata.
type Token struct {
	Value     string
	SessionID string
	ExpiresAt time.Time
}
