package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 32
)

// Violation messages returned by ValidateUsername.
const (
	MsgUsernameLength      = "Username must be between 3 and 32 characters long"
	MsgUsernameStart       = "Username must start with a letter"
	MsgUsernameCharacters  = "Username can only contain letters, numbers, underscores, dots and hyphens"
	MsgUsernameConsecutive = "Username cannot contain consecutive special characters"
	MsgUsernameEnd         = "Username cannot end with a special character"
	MsgUsernameReserved    = "Username is reserved"
)

var (
	usernameChars       = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	usernameDoubleSpec  = regexp.MustCompile(`[_.\-]{2}`)
	usernameReservedSet = map[string]struct{}{
		"admin": {}, "administrator": {}, "root": {}, "system": {}, "support": {},
		"api": {}, "login": {}, "logout": {}, "signup": {}, "register": {},
		"me": {}, "users": {}, "user": {}, "bulk": {}, "connect": {},
		"null": {}, "undefined": {}, "anonymous": {}, "moderator": {},
	}
)

// ValidateUsername checks name against the naming rules and returns a
// human-readable violation, or "" when the name is acceptable.
func ValidateUsername(name string) string {
	if n := utf8.RuneCountInString(name); n < usernameMinLength || n > usernameMaxLength {
		return MsgUsernameLength
	}
	if !isASCIILetter(name[0]) {
		return MsgUsernameStart
	}
	if !usernameChars.MatchString(name) {
		return MsgUsernameCharacters
	}
	if usernameDoubleSpec.MatchString(name) {
		return MsgUsernameConsecutive
	}
	if isSeparator(name[len(name)-1]) {
		return MsgUsernameEnd
	}
	if _, reserved := usernameReservedSet[strings.ToLower(name)]; reserved {
		return MsgUsernameReserved
	}
	return ""
}

// UsernameError carries a username policy violation.
type UsernameError struct {
	Reason string
}

func (e *UsernameError) Error() string {
	return e.Reason
}

// CheckUsername is ValidateUsername in error form.
func CheckUsername(name string) error {
	if reason := ValidateUsername(name); reason != "" {
		return &UsernameError{Reason: reason}
	}
	return nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isSeparator(b byte) bool {
	return b == '_' || b == '.' || b == '-'
}
