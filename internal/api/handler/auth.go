package handler

import (
	"context"
	"net/http"
	"time"

	mw "github.com/kiranshivaraju/tenantcore/internal/api/middleware"
	"github.com/kiranshivaraju/tenantcore/internal/api/response"
	"github.com/kiranshivaraju/tenantcore/internal/auth"
)

// Identity checks credentials and issues sessions.
type Identity interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
}

// SessionCookie describes the browser session cookie.
type SessionCookie struct {
	Name   string
	Secure bool
}

func (c SessionCookie) write(w http.ResponseWriter, value string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	} else {
		cookie.Expires = expires
	}
	http.SetCookie(w, cookie)
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      any       `json:"user"`
}

// NewLoginHandler returns an http.HandlerFunc for POST /api/v1/auth/login.
// The token is returned in the body and set as the session cookie.
func NewLoginHandler(idp Identity, cookie SessionCookie) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		session, err := idp.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			response.FromError(w, r, err)
			return
		}

		cookie.write(w, session.Token, session.ExpiresAt)
		response.JSON(w, loginResponse{
			Token:     session.Token,
			ExpiresAt: session.ExpiresAt,
			User:      session.Principal,
		})
	}
}

// NewLogoutHandler returns an http.HandlerFunc for POST /api/v1/auth/logout.
func NewLogoutHandler(cookie SessionCookie) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cookie.write(w, "", time.Time{})
		response.NoContent(w)
	}
}

// NewMeHandler returns an http.HandlerFunc for GET /api/v1/auth/me.
func NewMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mw.GetPrincipal(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Authentication required", nil)
			return
		}
		response.JSON(w, p)
	}
}
