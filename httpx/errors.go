package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbolis/quick-survey/log"
)

func requestFields(r *http.Request) log.Fields {
	return log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"req_id": middleware.GetReqID(r.Context()),
	}
}

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, r *http.Request, code string, err error) {
	log.WithFields(requestFields(r)).WithError(err).Error(code)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log a debug message, and send an HTTP response with status 404 and default text
func LogNotFound(w http.ResponseWriter, r *http.Request, code string, id any) {
	log.WithFields(requestFields(r)).Debugf("%s: not found (%v)", code, id)
	http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string) {
	log.WithFields(requestFields(r)).Log(level.Logrus(), code)
	http.Error(w, http.StatusText(status), status)
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.WithFields(requestFields(r)).Log(level.Logrus(), code+": "+errMsg)
	http.Error(w, errMsg, status)
}
