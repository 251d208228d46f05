package model

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const internalEmailDomain = "swift.bank.internal"

var (
	ErrUsernameInvalid      = errors.New("username must be 3-30 characters, letters, digits, dot or underscore")
	ErrFullNameInvalid      = errors.New("full name must be 2-100 characters, letters, spaces, hyphens or apostrophes")
	ErrIDNumberInvalid      = errors.New("id number must be 6-20 digits")
	ErrAccountNumberInvalid = errors.New("account number must be 7-12 digits")
	ErrPasswordTooWeak      = errors.New("password must be at least 8 characters with upper, lower, digit and symbol")
)

var (
	usernameRe      = regexp.MustCompile(`^[a-zA-Z0-9._]{3,30}$`)
	fullNameRe      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z '\-]{1,99}$`)
	idNumberRe      = regexp.MustCompile(`^[0-9]{6,20}$`)
	accountNumberRe = regexp.MustCompile(`^[0-9]{7,12}$`)
)

type User struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name"`
	IDNumber      string    `json:"-"`
	AccountNumber string    `json:"account_number"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RegisterRequest is the input for customer registration.
type RegisterRequest struct {
	Username      string
	FullName      string
	IDNumber      string
	AccountNumber string
	Password      string
}

func (p RegisterRequest) Validate() error {
	if !usernameRe.MatchString(p.Username) {
		return ErrUsernameInvalid
	}
	if !fullNameRe.MatchString(strings.TrimSpace(p.FullName)) {
		return ErrFullNameInvalid
	}
	if !idNumberRe.MatchString(p.IDNumber) {
		return ErrIDNumberInvalid
	}
	if !accountNumberRe.MatchString(p.AccountNumber) {
		return ErrAccountNumberInvalid
	}
	if !PasswordMeetsPolicy(p.Password) {
		return ErrPasswordTooWeak
	}
	return nil
}

// InternalEmail derives the portal-internal address for a username.
func (p RegisterRequest) InternalEmail() string {
	return strings.ToLower(p.Username) + "@" + internalEmailDomain
}

// PasswordMeetsPolicy reports whether a password satisfies the strength
// policy: at least 8 characters covering upper, lower, digit and symbol.
func PasswordMeetsPolicy(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
