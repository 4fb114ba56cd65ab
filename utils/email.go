package utils

import (
	"errors"
	"net/mail"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail returns the canonical form of an email address, used to store and look up subscriptions
// The local part is case-sensitive in theory, so only the domain is lowercased
func NormalizeEmail(email string) string {
	email = norm.NFKC.String(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// ValidateEmail returns an error if the value is not a bare email address (without display name)
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("this field may not be blank")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return errors.New("enter a valid email address")
	}
	return nil
}
