// internal/auth/identity.go
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

const (
	// CookieName carries the participant token for browser clients.
	CookieName = "auth_token"
	// HeaderName carries the participant token for non-browser clients.
	HeaderName = "X-AuthToken"
	// QueryParam carries the token on websocket URLs, where headers are awkward.
	QueryParam = "access_token"
)

// ErrNoToken is returned when the request carries no token at all.
var ErrNoToken = errors.New("auth: no token in request")

// TokenFromRequest finds a token in the header, the cookie or the query
// string, in that order.
func TokenFromRequest(r *http.Request) string {
	if tok := r.Header.Get(HeaderName); tok != "" {
		return tok
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get(QueryParam)
}

// Participant resolves the authenticated participant id of r.
func Participant(r *http.Request) (string, error) {
	tok := TokenFromRequest(r)
	if tok == "" {
		return "", ErrNoToken
	}
	return AuthenticateJWT(tok)
}

// EnsureParticipant resolves the caller, issuing a guest identity cookie when
// the request carries no valid token.
func EnsureParticipant(w http.ResponseWriter, r *http.Request) (string, error) {
	if id, err := Participant(r); err == nil {
		return id, nil
	}

	id := uuid.NewString()
	tok, err := CreateJWT(id)
	if err != nil {
		return "", fmt.Errorf("failed to issue guest token: %w", err)
	}
	SetCookie(w, tok)
	return id, nil
}

// SetCookie writes the participant token cookie.
func SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   int(TokenTTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}
