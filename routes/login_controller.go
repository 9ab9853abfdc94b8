package routes

import (
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mbolis/quick-survey/app"
	"github.com/mbolis/quick-survey/httpx"
	"github.com/mbolis/quick-survey/log"
	"github.com/mbolis/quick-survey/routes/middlewares"
)

var reRefresh = regexp.MustCompile(`(?i)^refresh\s+(.*)`)

// Login exchanges basic auth credentials for an admin token pair. The
// pair is also set as cookies so exports can be downloaded from a browser.
func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			httpx.LogStatus(w, r, http.StatusUnauthorized, log.DebugLevel, "login.basic_auth")
			return
		}

		body := url.Values{
			"grant_type": {"password"},
			"username":   {user},
			"password":   {pass},
		}.Encode()
		r.Body = io.NopCloser(strings.NewReader(body))
		r.Header.Set("content-type", "application/x-www-form-urlencoded")
		r.Header.Set("content-length", strconv.Itoa(len(body)))

		issueTokens(app, w, r, "login")
		log.WithFields(log.Fields{"user": user}).Debug("login.done")
	}
}

// Refresh trades a refresh token, sent as "Authorization: Refresh <token>",
// for a new token pair.
func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		match := reRefresh.FindStringSubmatch(r.Header.Get("authorization"))
		if len(match) == 0 {
			httpx.LogStatus(w, r, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}

		body := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {match[1]},
		}.Encode()
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "/", strings.NewReader(body))
		if err != nil {
			httpx.LogInternalError(w, r, "refresh.new_request", err)
			return
		}
		req.Header.Set("content-type", "application/x-www-form-urlencoded")
		req.Header.Set("content-length", strconv.Itoa(len(body)))

		issueTokens(app, w, req, "refresh")
	}
}

func issueTokens(app app.App, w http.ResponseWriter, r *http.Request, code string) {
	resp := httpx.NewResponseBuffer()
	app.UserCredentials(resp, r)
	if resp.Status() == http.StatusOK {
		_, err := middlewares.SetTokenCookies(w, resp.Body())
		if err != nil {
			httpx.LogInternalError(w, r, code+".set_cookies", err)
			return
		}
	} else {
		log.WithFields(log.Fields{"status": resp.Status()}).Debug(code + ".rejected")
	}
	resp.Flush(w)
}
