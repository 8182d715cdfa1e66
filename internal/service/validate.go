package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxTenantNameLen = 100
	maxDomainLen     = 100
	maxPersonNameLen = 50
	minPasswordLen   = 8
)

var domainPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// validator collects the first problem found for each field.
type validator struct {
	fields map[string]string
}

func (v *validator) check(ok bool, field, msg string) {
	if ok {
		return
	}
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, seen := v.fields[field]; !seen {
		v.fields[field] = msg
	}
}

func (v *validator) required(value, field string) {
	v.check(strings.TrimSpace(value) != "", field, "is required")
}

func (v *validator) maxLen(value string, n int, field string) {
	v.check(utf8.RuneCountInString(value) <= n, field, "is too long")
}

func (v *validator) email(value, field string) {
	if strings.TrimSpace(value) == "" {
		v.required(value, field)
		return
	}
	addr, err := mail.ParseAddress(value)
	v.check(err == nil && addr.Address == value, field, "is not a valid email address")
}

func (v *validator) domain(value, field string) {
	v.required(value, field)
	v.maxLen(value, maxDomainLen, field)
	v.check(domainPattern.MatchString(value), field, "may only contain lowercase letters, digits and hyphens")
}

func (v *validator) password(value, field string) {
	v.required(value, field)
	v.check(utf8.RuneCountInString(value) >= minPasswordLen, field, "must be at least 8 characters")
}

// strongPassword adds the character-class rules applied to self-service signups.
func (v *validator) strongPassword(value, field string) {
	v.password(value, field)
	v.check(strings.ContainsFunc(value, unicode.IsUpper), field, "must contain an uppercase letter")
	v.check(strings.ContainsFunc(value, unicode.IsLower), field, "must contain a lowercase letter")
	v.check(strings.ContainsFunc(value, unicode.IsDigit), field, "must contain a digit")
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
