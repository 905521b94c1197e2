package domain

// Candidate is one record of a bulk import batch.
type Candidate struct {
	Username     string
	Email        string
	Firstname    string
	Lastname     string
	MobileNumber string
	Password     string
}

// ToUser returns the account shape of the candidate without any credential.
func (c Candidate) ToUser() User {
	return User{
		Username:     c.Username,
		Email:        c.Email,
		Firstname:    c.Firstname,
		Lastname:     c.Lastname,
		MobileNumber: c.MobileNumber,
		Role:         UserRoleMember,
	}
}

// DuplicateVerdict records which identity fields already exist in storage.
type DuplicateVerdict struct {
	Username bool
	Email    bool
}

// Conflict reports whether any field collided.
func (v DuplicateVerdict) Conflict() bool {
	return v.Username || v.Email
}

// Message renders the verdict the way callers display it. Empty means no conflict.
func (v DuplicateVerdict) Message() string {
	switch {
	case v.Username && v.Email:
		return "Username and email already exists"
	case v.Email:
		return "Email"
	case v.Username:
		return "Username already exists"
	default:
		return ""
	}
}

// CheckedCandidate is a candidate annotated by duplicate detection.
type CheckedCandidate struct {
	Candidate Candidate
	Verdict   DuplicateVerdict
	// Err is set when a storage lookup failed; Verdict is then incomplete.
	Err error
}

// Provisionable reports whether the candidate may proceed to provisioning.
func (c CheckedCandidate) Provisionable() bool {
	return c.Err == nil && !c.Verdict.Conflict()
}

// Reason is the message shown for a candidate that is not provisionable.
func (c CheckedCandidate) Reason() string {
	if c.Err != nil {
		return c.Err.Error()
	}
	return c.Verdict.Message()
}

// BatchResult is the per-record outcome of a provisioning attempt.
type BatchResult struct {
	User    User
	Created bool
	Error   *string
}

// FailedResult builds a result for a record that was not created.
func FailedResult(user User, reason string) BatchResult {
	user.Credential = nil
	return BatchResult{User: user, Created: false, Error: &reason}
}
