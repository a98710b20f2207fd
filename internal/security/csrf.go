package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/engineroom-pricing/internal/common"
)

// CSRF protects the cookie session using the double-submit technique.
// The token cookie is readable by the page so its script can echo it back
// in the header.
type CSRF struct {
	Header string
	Cookie string
	Secure bool
}

func (c CSRF) names() (header, cookie string) {
	header = strings.TrimSpace(c.Header)
	if header == "" {
		header = "X-CSRF-Token"
	}
	cookie = strings.TrimSpace(c.Cookie)
	if cookie == "" {
		cookie = "csrf_token"
	}
	return header, cookie
}

// Token returns the caller's CSRF token, issuing a fresh cookie when absent.
func (c CSRF) Token(w http.ResponseWriter, r *http.Request) string {
	_, cookieName := c.names()
	if existing, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(existing.Value) != "" {
		return existing.Value
	}
	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token
}

// Middleware enforces that non-idempotent requests include a CSRF token header matching a cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName, cookieName := c.names()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions || method == http.MethodTrace {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_FAILED", "missing csrf token", nil)
			return
		}

		cookie, err := r.Cookie(cookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_FAILED", "missing csrf cookie", nil)
			return
		}

		if subtleConstantTimeCompare(token, cookie.Value) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_FAILED", "invalid csrf token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func subtleConstantTimeCompare(a, b string) int {
	if len(a) != len(b) {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b))
}
