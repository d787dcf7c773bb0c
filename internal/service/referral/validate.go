package referral

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/ignite/referral-tracker/internal/domain"
)

const (
	maxNameLength  = 100
	maxEmailLength = 255
)

func validateName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &ValidationError{Field: field, Message: "this field may not be blank"}
	}
	if utf8.RuneCountInString(value) > maxNameLength {
		return "", &ValidationError{Field: field, Message: "ensure this field has no more than 100 characters"}
	}
	return value, nil
}

// validateEmail returns the normalized address.
func validateEmail(value string) (string, error) {
	email := domain.NormalizeEmail(value)
	if email == "" {
		return "", &ValidationError{Field: "email", Message: "this field may not be blank"}
	}
	if len(email) > maxEmailLength {
		return "", &ValidationError{Field: "email", Message: "ensure this field has no more than 255 characters"}
	}
	addr, err := mail.ParseAddress(email)
	_, host, _ := strings.Cut(email, "@")
	if err != nil || addr.Address != email || addr.Name != "" || !strings.Contains(host, ".") {
		return "", &ValidationError{Field: "email", Message: "enter a valid email address"}
	}
	return email, nil
}

func validateStatus(s domain.ReferralStatus) error {
	if !s.Valid() {
		choices := make([]string, len(domain.Statuses))
		for i, st := range domain.Statuses {
			choices[i] = string(st)
		}
		return &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("%q is not a valid choice, expected one of %s", string(s), strings.Join(choices, ", ")),
		}
	}
	return nil
}
