package middlewares

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"

	"github.com/mbolis/quick-survey/httpx"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	refreshCookieAge   = 60 * 60 * 24 * 365
)

// Admin returns a middleware that checks for the 'admin' role in an OAuth token.
func Admin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(oauth.Authorize(secret, nil), admin).Handler(next)
	}
}

func admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(oauth.ClaimsContext).(map[string]string)

		isAdmin := false
		if rolesClaim, ok := claims["roles"]; ok {
			roles := strings.Split(rolesClaim, ",")
			for _, role := range roles {
				if strings.TrimSpace(role) == "admin" {
					isAdmin = true
					break
				}
			}
		}

		if !isAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetTokenCookies stores a token response from the bearer server as cookies,
// for CookieAuth to pick up on later browser requests. It returns the
// access token.
func SetTokenCookies(w http.ResponseWriter, body []byte) (string, error) {
	var tokens struct {
		AccessToken  string  `json:"access_token"`
		RefreshToken string  `json:"refresh_token"`
		ExpiresIn    float64 `json:"expires_in"`
	}
	err := json.Unmarshal(body, &tokens)
	if err != nil {
		return "", err
	}
	if tokens.AccessToken == "" {
		return "", errors.New("token response without access_token")
	}

	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     AccessTokenCookie,
		Value:    tokens.AccessToken,
		MaxAge:   int(tokens.ExpiresIn),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if tokens.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Path:     "/",
			Name:     RefreshTokenCookie,
			Value:    tokens.RefreshToken,
			MaxAge:   refreshCookieAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return tokens.AccessToken, nil
}

// CookieAuth lets browser GET requests authenticate with the token cookies
// set at login. An expired access token is renewed with the refresh cookie.
// Requests that already carry an Authorization header pass through.
func CookieAuth(bearerServer *oauth.BearerServer) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.Header.Get("authorization") != "" {
				h.ServeHTTP(w, r)
				return
			}

			token, err := r.Cookie(AccessTokenCookie)
			if err != nil && !errors.Is(err, http.ErrNoCookie) {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if err == nil {
				r.Header.Set("authorization", "Bearer "+token.Value)
				buf := httpx.NewResponseBuffer()
				h.ServeHTTP(buf, r)
				if buf.Status() != http.StatusUnauthorized {
					buf.Flush(w)
					return
				}
			}

			// token was empty or unauthorized
			refreshToken, err := r.Cookie(RefreshTokenCookie)
			if err != nil {
				if !errors.Is(err, http.ErrNoCookie) {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			// produce new token by calling bearer server
			body := url.Values{
				"grant_type":    {"refresh_token"},
				"refresh_token": {refreshToken.Value},
			}
			req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "/", strings.NewReader(body.Encode()))
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			req.Header.Set("content-type", "application/x-www-form-urlencoded")
			req.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

			resp := httpx.NewResponseBuffer()
			bearerServer.UserCredentials(resp, req)
			if resp.Status() == http.StatusUnauthorized {
				http.SetCookie(w, &http.Cookie{
					Path:   "/",
					Name:   RefreshTokenCookie,
					Value:  "",
					MaxAge: -1,
				})
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if resp.Status() != http.StatusOK {
				http.Error(w, http.StatusText(resp.Status()), resp.Status())
				return
			}

			accessToken, err := SetTokenCookies(w, resp.Body())
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			r.Header.Set("authorization", "Bearer "+accessToken)
			h.ServeHTTP(w, r)
		})
	}
}
