package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"famsync/internal/models"
)

const (
	// MinPINLength is the shortest family PIN accepted when creating a family
	MinPINLength = 4

	// MinPasswordLength matches the remote auth provider's floor
	MinPasswordLength = 8

	// MaxTitleLength caps event titles in runes
	MaxTitleLength = 200
)

// ValidationError reports a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err (or anything it wraps) is a ValidationError
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateEmail accepts a bare address ("ann@example.com"), not a display-name form
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(domainOf(email), ".") {
		return invalid("email", "invalid email format")
	}
	return nil
}

func domainOf(email string) string {
	_, domain, _ := strings.Cut(email, "@")
	return domain
}

// ValidatePassword enforces MinPasswordLength
func ValidatePassword(password string) error {
	switch {
	case password == "":
		return invalid("password", "password is required")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return invalid("password", "password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// ValidateName checks a person's first name
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return invalid("name", "name is required")
	case utf8.RuneCountInString(name) < 2:
		return invalid("name", "name must be at least 2 characters")
	}
	return nil
}

// ValidatePIN checks a family PIN chosen at family creation
func ValidatePIN(pin string) error {
	switch {
	case strings.TrimSpace(pin) == "":
		return invalid("pin", "pin is required")
	case len(pin) < MinPINLength:
		return invalid("pin", "pin must be at least %d digits long", MinPINLength)
	}
	return nil
}

// Required checks that a free-form field is not blank
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "%s is required", field)
	}
	return nil
}

// ValidateEvent checks the fields a client controls on an event. Dates are
// stored as given: an end before the start, or an instant before 1970, is
// left to the client.
func ValidateEvent(event *models.Event) error {
	if err := Required("title", event.Title); err != nil {
		return err
	}
	if utf8.RuneCountInString(event.Title) > MaxTitleLength {
		return invalid("title", "title must be at most %d characters", MaxTitleLength)
	}
	return nil
}
