// Package service holds the tenant, user, plan and subscription use cases
// that sit between the HTTP handlers and the store.
package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kiranshivaraju/tenantcore/internal/auth"
	"github.com/kiranshivaraju/tenantcore/internal/store"
)

var (
	ErrNotFound  = errors.New("resource not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredential never says whether the email or the password was
	// wrong.
	ErrInvalidCredential = auth.ErrInvalidCredential
)

// ValidationError lists the rejected input fields and why.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// ConflictError names the unique field whose value is already in use. It
// matches ErrConflict.
type ConflictError struct {
	Field  string
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Field + " " + e.Reason
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func conflict(field, reason string) error {
	return &ConflictError{Field: field, Reason: reason}
}

// translate maps store errors onto the service sentinels.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, store.ErrDuplicateKey):
		return fmt.Errorf("%s already exists: %w", what, ErrConflict)
	case errors.Is(err, store.ErrForeignKey):
		return fmt.Errorf("%s is still referenced: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
