package repository

import (
	"fmt"
	"strings"

	"github.com/spec-kit/account-service/internal/domain"
)

// UserFilter selects users. Zero-valued fields are ignored and the set
// fields are combined with AND.
type UserFilter struct {
	ID       string
	Username string
	Email    string
	// EmailLoose matches ignoring case and dots, so ab.c@x.com finds abc@x.com.
	EmailLoose      string
	FirstnamePrefix string
	LastnamePrefix  string
	ContactPrefix   string
	VerifiedEmail   string
	Verified        *bool
}

// Empty reports whether the filter selects every row.
func (f UserFilter) Empty() bool {
	return f.ID == "" &&
		f.Username == "" &&
		f.Email == "" &&
		f.EmailLoose == "" &&
		f.FirstnamePrefix == "" &&
		f.LastnamePrefix == "" &&
		f.ContactPrefix == "" &&
		f.VerifiedEmail == "" &&
		f.Verified == nil
}

// where renders the filter as a WHERE clause whose placeholders continue after args.
func (f UserFilter) where(args []any) (string, []any) {
	var conds []string
	add := func(format string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if f.ID != "" {
		add("id = $%d", f.ID)
	}
	if f.Username != "" {
		add("lower(username) = lower($%d)", f.Username)
	}
	if f.Email != "" {
		add("lower(email) = lower($%d)", f.Email)
	}
	if f.EmailLoose != "" {
		add("lower(replace(email, '.', '')) = lower(replace($%d, '.', ''))", f.EmailLoose)
	}
	if f.FirstnamePrefix != "" {
		add("firstname ILIKE $%d", escapeLike(f.FirstnamePrefix)+"%")
	}
	if f.LastnamePrefix != "" {
		add("lastname ILIKE $%d", escapeLike(f.LastnamePrefix)+"%")
	}
	if f.ContactPrefix != "" {
		add("mobile_number LIKE $%d", escapeLike(f.ContactPrefix)+"%")
	}
	if f.VerifiedEmail != "" {
		add("lower(verified_email) = lower($%d)", f.VerifiedEmail)
	}
	if f.Verified != nil {
		if *f.Verified {
			conds = append(conds, "verified_email IS NOT NULL")
		} else {
			conds = append(conds, "verified_email IS NULL")
		}
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// setClause renders changes as an UPDATE SET list that always bumps updated_at.
func setClause(changes domain.UserChanges, args []any) (string, []any) {
	var sets []string
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if changes.Firstname != nil {
		add("firstname", *changes.Firstname)
	}
	if changes.Lastname != nil {
		add("lastname", *changes.Lastname)
	}
	if changes.MobileNumber != nil {
		add("mobile_number", *changes.MobileNumber)
	}
	if changes.Photo != nil {
		add("photo", *changes.Photo)
	}
	if changes.GraduationYear != nil {
		add("graduation_year", *changes.GraduationYear)
	}
	if changes.VerifiedEmail != nil {
		add("verified_email", *changes.VerifiedEmail)
	}
	sets = append(sets, "updated_at = NOW()")
	return strings.Join(sets, ", "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
