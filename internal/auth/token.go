package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims is the JWT payload of a session token.
type SessionClaims struct {
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	TenantID string   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for p and returns it with its expiry.
func (t *TokenIssuer) Issue(p *tenancy.Principal) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := &SessionClaims{
		Name:     p.Name,
		Email:    p.Email,
		TenantID: p.TenantID,
		Roles:    p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies the signature, issuer and expiry of raw and returns the
// principal it describes.
func (t *TokenIssuer) Parse(raw string) (*tenancy.Principal, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &tenancy.Principal{
		Subject:  claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		TenantID: claims.TenantID,
		Roles:    claims.Roles,
		Method:   tenancy.MethodSession,
	}, nil
}
