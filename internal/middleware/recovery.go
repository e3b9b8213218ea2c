package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/metrics"
	"github.com/flipdesk/flipquery/internal/models"
)

// Recovery turns a handler panic into a 500 carrying the request id, so a
// user report can be matched to the logged stack.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			id := GetRequestID(r.Context())
			metrics.PanicsRecovered.WithLabelValues(r.URL.Path).Inc()
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", id).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("panic recovered")

			msg := "internal server error"
			if id != "" {
				msg += " (request " + id + ")"
			}
			models.WriteError(w, http.StatusInternalServerError, msg)
		}()
		next.ServeHTTP(w, r)
	})
}
