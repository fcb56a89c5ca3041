// Package validation checks request shapes at the API boundary before any
// service logic runs. Services assume their inputs already passed through here.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalid is matched by every validation failure
var ErrInvalid = errors.New("invalid input")

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// FieldError describes one rejected field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects field errors; the zero value is ready to use
type Errors []FieldError

// Add records a failure for field
func (e *Errors) Add(field, format string, args ...interface{}) {
	*e = append(*e, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil when nothing was recorded
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrInvalid) match
func (e Errors) Is(target error) bool {
	return target == ErrInvalid
}

// Fields maps field names to messages for error responses
func (e Errors) Fields() map[string]string {
	out := make(map[string]string, len(e))
	for _, fe := range e {
		out[fe.Field] = fe.Message
	}
	return out
}

// Required fails when value is blank
func (e *Errors) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "is required")
	}
}

// MinLength fails when value has fewer than n characters
func (e *Errors) MinLength(field, value string, n int) {
	if utf8.RuneCountInString(value) < n {
		e.Add(field, "must be at least %d characters", n)
	}
}

// MaxLength fails when value has more than n characters
func (e *Errors) MaxLength(field, value string, n int) {
	if utf8.RuneCountInString(value) > n {
		e.Add(field, "must be at most %d characters", n)
	}
}

// Email fails when value is not a bare address
func (e *Errors) Email(field, value string) {
	if !IsEmail(value) {
		e.Add(field, "must be a valid email address")
	}
}

// HexColor fails when value is not #rgb or #rrggbb
func (e *Errors) HexColor(field, value string) {
	if !hexColorPattern.MatchString(value) {
		e.Add(field, "must be a hex color like #1a2b3c")
	}
}

// NonNegative fails when value is below zero
func (e *Errors) NonNegative(field string, value int) {
	if value < 0 {
		e.Add(field, "must not be negative")
	}
}

// Positive fails when value is zero or below
func (e *Errors) Positive(field string, value int64) {
	if value <= 0 {
		e.Add(field, "must be positive")
	}
}

// IsEmail reports whether value parses as an address with no display name
func IsEmail(value string) bool {
	if value == "" || strings.ContainsAny(value, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return false
	}
	return addr.Address == value && strings.Contains(value[strings.LastIndex(value, "@")+1:], ".")
}
