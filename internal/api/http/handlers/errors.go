package handlers

import (
	"errors"
	"net/http"

	"github.com/spec-kit/account-service/internal/policy"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	"github.com/spec-kit/account-service/internal/validation"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// mapServiceError turns service failures into client-facing errors. Anything
// unrecognized is left for the error middleware.
func mapServiceError(err error) error {
	var usernameErr *policy.UsernameError
	var batchErr *validation.BatchError

	switch {
	case err == nil:
		return nil
	case errors.As(err, &batchErr):
		return apperrors.NewValidationError("invalid batch", map[string]any{"fields": batchErr.Errors})
	case errors.As(err, &usernameErr):
		return apperrors.NewValidationError(usernameErr.Reason, map[string]any{"field": "username"})
	case errors.Is(err, service.ErrDomainNotWhitelisted),
		errors.Is(err, service.ErrInvalidPhoneFormat),
		errors.Is(err, service.ErrNoChanges),
		errors.Is(err, repository.ErrUnboundedUpdate):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.NewUnauthorized(err.Error())
	case errors.Is(err, service.ErrRegistrationFailed):
		return apperrors.NewDomainError("REGISTRATION_FAILED", err.Error(), http.StatusConflict, nil)
	case errors.Is(err, service.ErrBatchTooLarge):
		return apperrors.NewDomainError("BATCH_TOO_LARGE", err.Error(), http.StatusRequestEntityTooLarge, nil)
	}
	return err
}
