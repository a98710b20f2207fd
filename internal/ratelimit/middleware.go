package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/engineroom-pricing/internal/common"
)

// MsgLimited is shown next to the form when submissions are throttled.
const MsgLimited = "Too many submissions, please wait and try again"

// Handler throttles quote submissions. A limiter error lets the request
// through and is reported to OnError.
type Handler struct {
	Limiter Limiter
	Rate    Rate
	// Key defaults to ByClientIP.
	Key        func(*http.Request) string
	ClearAfter time.Duration
	OnError    func(error)
	Now        func() time.Time
}

// ByClientIP keys submissions on the caller address.
func ByClientIP(r *http.Request) string {
	return "ip:" + common.ClientIP(r)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Rate.Disabled() {
		return next
	}
	key := h.Key
	if key == nil {
		key = ByClientIP
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Limiter.Allow(r.Context(), key(r), h.Rate)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(h.Rate.Max))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		wait := int(math.Ceil(d.Reset.Sub(now()).Seconds()))
		wait = max(wait, 0)
		headers.Set("Retry-After", strconv.Itoa(wait))
		common.JSONFailure(w, http.StatusTooManyRequests, common.ErrorBody{
			Code:    "RATE_LIMITED",
			Message: MsgLimited,
			Details: map[string]int{"retryAfterSeconds": wait},
		}, h.ClearAfter)
	})
}
