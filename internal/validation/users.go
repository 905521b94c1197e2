package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/policy"
)

// MsgInvalidMobileNumber is reported for mobile numbers that do not parse.
const MsgInvalidMobileNumber = "INVALID_MOBILE_NUMBER"

// UserInput is one raw record of a bulk import request.
type UserInput struct {
	Firstname    string `json:"firstname" validate:"required,min=3"`
	Lastname     string `json:"lastname" validate:"required,min=3"`
	Email        string `json:"email" validate:"required,email"`
	MobileNumber string `json:"mobile_number" validate:"omitempty,mobile"`
	Username     string `json:"username" validate:"required,username"`
	Password     string `json:"password" validate:"required,min=8"`
}

// FieldError describes one invalid field of one batch entry.
type FieldError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BatchError lists every invalid field of a rejected batch.
type BatchError struct {
	Errors []FieldError
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d invalid field(s) in batch", len(e.Errors))
}

// BulkValidator validates and normalizes bulk import batches.
type BulkValidator struct {
	validate *validator.Validate
}

// NewBulkValidator registers the custom rules.
func NewBulkValidator() *BulkValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return policy.ValidateUsername(fl.Field().String()) == ""
	})
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return ValidMobileNumber(fl.Field().String())
	})
	return &BulkValidator{validate: v}
}

// ValidateBatch lowercases emails and usernames, then validates every entry
// without stopping at the first failure.
func (b *BulkValidator) ValidateBatch(inputs []UserInput) ([]domain.Candidate, error) {
	candidates := make([]domain.Candidate, 0, len(inputs))
	var fieldErrs []FieldError

	for i, in := range inputs {
		in = normalize(in)
		if err := b.validate.Struct(in); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				return nil, err
			}
			for _, fe := range verrs {
				fieldErrs = append(fieldErrs, FieldError{Index: i, Field: fe.Field(), Message: message(fe)})
			}
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Username:     in.Username,
			Email:        in.Email,
			Firstname:    in.Firstname,
			Lastname:     in.Lastname,
			MobileNumber: in.MobileNumber,
			Password:     in.Password,
		})
	}

	if len(fieldErrs) > 0 {
		return nil, &BatchError{Errors: fieldErrs}
	}
	return candidates, nil
}

func normalize(in UserInput) UserInput {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Firstname = strings.TrimSpace(in.Firstname)
	in.Lastname = strings.TrimSpace(in.Lastname)
	in.MobileNumber = strings.TrimSpace(in.MobileNumber)
	return in
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", fe.Field())
	case "min":
		return fmt.Sprintf("%q length must be at least %s characters long", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%q must be a valid email", fe.Field())
	case "mobile":
		return MsgInvalidMobileNumber
	case "username":
		return policy.ValidateUsername(fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%q failed %s validation", fe.Field(), fe.Tag())
	}
}

// MobileRegion is the default region for numbers written without a country code.
const MobileRegion = "IN"

// ValidMobileNumber accepts a mobile number of MobileRegion, with or without
// its country code or trunk prefix.
func ValidMobileNumber(raw string) bool {
	num, err := phonenumbers.Parse(raw, MobileRegion)
	if err != nil || num.GetExtension() != "" {
		return false
	}
	if !phonenumbers.IsValidNumberForRegion(num, MobileRegion) {
		return false
	}
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.MOBILE, phonenumbers.FIXED_LINE_OR_MOBILE:
		return true
	default:
		return false
	}
}
