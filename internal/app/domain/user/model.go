package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/storydesk/curation/internal/app/domain/validation"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// User is a registered account. Email is stored trimmed and lower-cased and
// is unique across the store.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Staff        bool
	CreatedAt    time.Time
}

// NormalizeEmail trims and lower-cases an email address for comparison and
// storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Registration carries the raw fields of a signup request.
type Registration struct {
	Email     string
	Password1 string
	Password2 string
	FirstName string
	LastName  string
}

// Validate checks a registration request. Duplicate-email detection is the
// store's job; everything else is checked here.
func (r Registration) Validate() error {
	var errs validation.Errors

	email := NormalizeEmail(r.Email)
	if email == "" || r.Password1 == "" || r.Password2 == "" {
		return errs.Add("detail", "email and passwords are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		errs = errs.Add("email", "enter a valid email address")
	}
	if r.Password1 != r.Password2 {
		errs = errs.Add("password2", "passwords do not match")
	}
	if len(r.Password1) < MinPasswordLength {
		errs = errs.Add("password1", "password must be at least 8 characters long")
	}
	return errs.OrNil()
}
