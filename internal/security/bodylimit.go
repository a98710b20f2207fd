package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/noah-isme/engineroom-pricing/internal/common"
)

// MsgTooLarge is shown when a quote request exceeds the body limit.
const MsgTooLarge = "The quote request is too large"

// BodyLimit caps request bodies at Max bytes. The body is read up front so an
// oversized quote is refused before any handler decodes part of it.
type BodyLimit struct {
	Max        int64
	ClearAfter time.Duration
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			b.tooLarge(w)
			return
		}

		buf, err := io.ReadAll(http.MaxBytesReader(w, r.Body, b.Max))
		_ = r.Body.Close()
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			b.tooLarge(w)
			return
		case err != nil:
			common.JSONFailure(w, http.StatusBadRequest, common.ErrorBody{Code: "BAD_REQUEST", Message: "invalid request body"}, b.ClearAfter)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}

func (b BodyLimit) tooLarge(w http.ResponseWriter) {
	common.JSONFailure(w, http.StatusRequestEntityTooLarge, common.ErrorBody{
		Code:    "PAYLOAD_TOO_LARGE",
		Message: MsgTooLarge,
		Details: map[string]int64{"maxBytes": b.Max},
	}, b.ClearAfter)
}
