package dto

import (
	"time"

	"github.com/spec-kit/account-service/internal/validation"
)

// RegisterRequest payload for new local accounts.
type RegisterRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Firstname      string `json:"firstname"`
	Lastname       string `json:"lastname"`
	MobileNumber   string `json:"mobile_number"`
	GraduationYear *int   `json:"graduation_year"`
	Password       string `json:"password"`
}

// InviteRequest payload for accounts that sign in through an external
// provider.
type InviteRequest struct {
	Username      string  `json:"username"`
	Email         string  `json:"email"`
	Firstname     string  `json:"firstname"`
	Lastname      string  `json:"lastname"`
	MobileNumber  string  `json:"mobile_number"`
	VerifiedEmail *string `json:"verified_email"`
}

// LoginRequest payload for login. Username may also be an email address.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProfileUpdateRequest carries the fields a user may change on their own account.
type ProfileUpdateRequest struct {
	Firstname      *string `json:"firstname"`
	Lastname       *string `json:"lastname"`
	MobileNumber   *string `json:"mobile_number"`
	Photo          *string `json:"photo"`
	GraduationYear *int    `json:"graduation_year"`
}

// UserWhere selects the users an admin update applies to.
type UserWhere struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AdminUserChanges extends the profile fields with the verified email.
type AdminUserChanges struct {
	ProfileUpdateRequest
	VerifiedEmail *string `json:"verified_email"`
}

// AdminUpdateRequest updates every user matching Where.
type AdminUpdateRequest struct {
	Where UserWhere        `json:"where"`
	Set   AdminUserChanges `json:"set"`
}

// BulkRequest is the body of the bulk check and import endpoints.
type BulkRequest struct {
	Users []validation.UserInput `json:"users"`
}

// UserResponse is a user record; fields hidden from the caller are omitted.
type UserResponse struct {
	ID             string     `json:"id,omitempty"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	Firstname      string     `json:"firstname,omitempty"`
	Lastname       string     `json:"lastname,omitempty"`
	MobileNumber   string     `json:"mobile_number,omitempty"`
	Photo          string     `json:"photo,omitempty"`
	GraduationYear *int       `json:"graduation_year,omitempty"`
	VerifiedEmail  *string    `json:"verified_email,omitempty"`
	Role           string     `json:"role,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// BatchResultResponse is one record of a bulk import response. Error is null
// for created records.
type BatchResultResponse struct {
	UserResponse
	Created bool    `json:"created"`
	Error   *string `json:"error"`
}

// Conflicts names the fields that collide with an existing account.
type Conflicts struct {
	Username bool `json:"username"`
	Email    bool `json:"email"`
}

// CheckResultResponse is one record of a bulk duplicate check.
type CheckResultResponse struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Firstname    string    `json:"firstname"`
	Lastname     string    `json:"lastname"`
	MobileNumber string    `json:"mobile_number,omitempty"`
	Conflicts    Conflicts `json:"conflicts"`
	Error        *string   `json:"error"`
}
