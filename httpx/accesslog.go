package httpx

import (
	"net/http"

	"github.com/felixge/httpsnoop"

	"github.com/mbolis/quick-survey/log"
)

// AccessLog logs one line per request once the handler is done.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		fields := requestFields(r)
		fields["status"] = m.Code
		fields["bytes"] = m.Written
		fields["duration"] = m.Duration.String()
		entry := log.WithFields(fields)

		switch {
		case m.Code >= http.StatusInternalServerError:
			entry.Warn("http.request")
		default:
			entry.Info("http.request")
		}
	})
}
