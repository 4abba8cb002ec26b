package auth

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/mahaj/chatrelay/pkg/model"
)

const DefaultCookieName = "jwt"

var ErrUnauthenticated = errors.New("unauthenticated")

// RequestAuthenticator resolves the caller of an HTTP request. The token is
// looked up in the cookie first, then the Authorization header, then the
// "token" query parameter.
type RequestAuthenticator struct {
	manager    *Manager
	cookieName string
}

func NewRequestAuthenticator(m *Manager, cookieName string) *RequestAuthenticator {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &RequestAuthenticator{manager: m, cookieName: cookieName}
}

func (a *RequestAuthenticator) Authenticate(r *http.Request) (model.Identity, error) {
	raw := TokenFromRequest(r, a.cookieName)
	if raw == "" {
		return model.Identity{}, ErrUnauthenticated
	}

	claims, err := a.manager.ValidateToken(raw)
	if err != nil {
		return model.Identity{}, errors.Wrap(ErrUnauthenticated, err.Error())
	}
	return claims.Identity(), nil
}

// CookieName is the cookie the token is read from and issued into.
func (a *RequestAuthenticator) CookieName() string {
	return a.cookieName
}

// Manager exposes the underlying token manager.
func (a *RequestAuthenticator) Manager() *Manager {
	return a.manager
}

func TokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
