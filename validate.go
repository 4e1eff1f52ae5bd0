package auth

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a form field to its validation messages, ready to be
// rendered inline next to the offending control.
type FieldErrors map[string][]string

func (f FieldErrors) Error() string {
	return fmt.Sprintf("validation failed: %s", f.First())
}

func (f FieldErrors) First() string {
	for _, msgs := range f {
		if len(msgs) > 0 {
			return msgs[0]
		}
	}
	return "Validation error"
}

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report fields under their wire names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// ValidateLogin runs the pre-network field checks. A nil return means the
// payload may be sent.
func ValidateLogin(payload LoginRequest) error {
	return collectFieldErrors(formValidator.Struct(payload))
}

func ValidateRegister(payload RegisterRequest) error {
	return collectFieldErrors(formValidator.Struct(payload))
}

func ValidatePasswordChange(payload PasswordChangeRequest) error {
	return collectFieldErrors(formValidator.Struct(payload))
}

func collectFieldErrors(err error) error {
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := FieldErrors{}
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
	}

	if len(fields) == 0 {
		return nil
	}

	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		switch fe.Field() {
		case "terms_accepted":
			return "You must accept the terms of service."
		case "privacy_policy_accepted":
			return "You must accept the privacy policy."
		}
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Use at least %s characters.", fe.Param())
	case "eqfield":
		return "Passwords do not match."
	case "nefield":
		return "New password must differ from the current password."
	case "oneof":
		return "Select a valid account type."
	}
	return "This field is invalid."
}
