package service

import "errors"

var (
	ErrDomainNotWhitelisted = errors.New("Email domain not whitelisted")
	ErrRegistrationFailed   = errors.New("Unsuccessful registration. Please try again.")
	ErrInvalidPhoneFormat   = errors.New("Invalid Phone Format")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrBatchTooLarge        = errors.New("batch exceeds the maximum size")
	ErrNoChanges            = errors.New("no fields to update")
)
