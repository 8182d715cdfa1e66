package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredential covers both an unknown email and a wrong password.
var ErrInvalidCredential = errors.New("invalid email or password")

// UserLookup finds a user for login.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal *tenancy.Principal
}

// IdentityProvider checks passwords and issues session tokens.
type IdentityProvider struct {
	users     UserLookup
	tokens    *TokenIssuer
	dummyHash []byte
}

func NewIdentityProvider(users UserLookup, tokens *TokenIssuer) *IdentityProvider {
	// Compared against when the email is unknown so both failures cost the same.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("tenantcore-dummy-password"), bcrypt.DefaultCost)
	return &IdentityProvider{users: users, tokens: tokens, dummyHash: dummy}
}

// Login verifies email and password and issues a session token.
func (p *IdentityProvider) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredential
	}

	user, err := p.users.GetUserByEmail(tenancy.WithSystemScope(ctx), email)
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(password))
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	principal := PrincipalForUser(user)
	token, expires, err := p.tokens.Issue(principal)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, Principal: principal}, nil
}

// PrincipalForUser builds the session principal of u.
func PrincipalForUser(u *models.User) *tenancy.Principal {
	p := &tenancy.Principal{
		Subject: u.ID.String(),
		Name:    u.FullName(),
		Email:   u.Email,
		Roles:   u.Roles,
		Method:  tenancy.MethodSession,
	}
	if u.TenantID != nil {
		p.TenantID = u.TenantID.String()
	}
	return p
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
