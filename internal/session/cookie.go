package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Cookies issues and reads the session id cookie.
type Cookies struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

func (c Cookies) name() string {
	if c.Name == "" {
		return "quote_session"
	}
	return c.Name
}

// ID returns the session id carried by r, if any.
func (c Cookies) ID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.name())
	if err != nil || cookie.Value == "" {
		return "", false
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return "", false
	}
	return cookie.Value, true
}

// Ensure returns the existing session id or issues a new one on w.
func (c Cookies) Ensure(w http.ResponseWriter, r *http.Request) string {
	if id, ok := c.ID(r); ok {
		return id
	}
	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     c.name(),
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.TTL > 0 {
		cookie.MaxAge = int(c.TTL / time.Second)
	}
	http.SetCookie(w, cookie)
	return id
}
