package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/fills-ai/payments-api/internal/common"
)

// DefaultBodyLimit bounds request bodies when no limit is configured.
const DefaultBodyLimit int64 = 64 << 10

// BodyLimit enforces a maximum request payload size.
type BodyLimit struct {
	Max int64
}

// Middleware buffers the body up to Max bytes and rejects anything larger with
// a JSON 413 before the handler runs.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	max := b.Max
	if max <= 0 {
		max = DefaultBodyLimit
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > max {
			tooLarge(w)
			return
		}

		buf, err := io.ReadAll(io.LimitReader(r.Body, max+1))
		_ = r.Body.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			common.JSONError(w, http.StatusBadRequest, string(common.KindValidation), "invalid request body", nil)
			return
		}
		if int64(len(buf)) > max {
			tooLarge(w)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}

func tooLarge(w http.ResponseWriter) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
}
