package domain

import "time"

// UserRole separates regular accounts from trusted operators.
type UserRole string

const (
	UserRoleMember UserRole = "MEMBER"
	UserRoleAdmin  UserRole = "ADMIN"
)

// User is the domain model for a platform account.
type User struct {
	ID             string
	Username       string
	Email          string
	Firstname      string
	Lastname       string
	MobileNumber   string
	Photo          string
	GraduationYear *int
	// VerifiedEmail is nil until the address is confirmed.
	VerifiedEmail *string
	Role          UserRole
	Credential    *Credential
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsVerified reports whether the account has a confirmed email.
func (u *User) IsVerified() bool {
	return u != nil && u.VerifiedEmail != nil
}

// Credential holds the local password hash of a user.
type Credential struct {
	UserID       string
	PasswordHash string
}

// UserChanges lists the mutable profile fields; nil fields are left untouched.
type UserChanges struct {
	Firstname      *string
	Lastname       *string
	MobileNumber   *string
	Photo          *string
	GraduationYear *int
	VerifiedEmail  *string
}

// Empty reports whether no field is set.
func (c UserChanges) Empty() bool {
	return c.Firstname == nil &&
		c.Lastname == nil &&
		c.MobileNumber == nil &&
		c.Photo == nil &&
		c.GraduationYear == nil &&
		c.VerifiedEmail == nil
}

// PublicProfile is the view of a user exposed to untrusted clients.
func (u User) PublicProfile() User {
	return User{
		ID:             u.ID,
		Username:       u.Username,
		Photo:          u.Photo,
		GraduationYear: u.GraduationYear,
	}
}

// DirectoryEntry is the view of a user returned by untrusted directory searches.
func (u User) DirectoryEntry() User {
	return User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Firstname:    u.Firstname,
		Lastname:     u.Lastname,
		MobileNumber: u.MobileNumber,
	}
}
