package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	oauthStateCookie   = "barapp_oauth_state"
	googleUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
	oauthStateLifetime = 10 * time.Minute
)

// GoogleSignIn runs the authorization code flow against Google and hands
// the verified email to the AuthManager.
type GoogleSignIn struct {
	config      *oauth2.Config
	userInfoURL string
	auth        *AuthManager
}

type googleUserInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// NewGoogleSignIn returns nil when no client id is configured.
func NewGoogleSignIn(clientID, clientSecret, redirectURL string, auth *AuthManager) *GoogleSignIn {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &GoogleSignIn{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		auth:        auth,
	}
}

func (g *GoogleSignIn) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/v1/auth/google",
		MaxAge:   int(oauthStateLifetime.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, g.config.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

func (g *GoogleSignIn) handleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeError(w, http.StatusBadRequest, errors.New("oauth state mismatch"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/api/v1/auth/google", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing authorization code"))
		return
	}
	token, err := g.config.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errors.New("google exchange failed"))
		return
	}

	info, err := g.fetchUserInfo(r, token)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if !info.EmailVerified {
		writeError(w, http.StatusForbidden, errors.New("google email is not verified"))
		return
	}

	resp, err := g.auth.LoginExternal(r.Context(), info.Email, info.Name, ProviderGoogle)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *GoogleSignIn) fetchUserInfo(r *http.Request, token *oauth2.Token) (googleUserInfo, error) {
	client := g.config.Client(r.Context(), token)
	res, err := client.Get(g.userInfoURL)
	if err != nil {
		return googleUserInfo{}, fmt.Errorf("google userinfo: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return googleUserInfo{}, fmt.Errorf("google userinfo: status %d", res.StatusCode)
	}
	var info googleUserInfo
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&info); err != nil {
		return googleUserInfo{}, fmt.Errorf("google userinfo: %w", err)
	}
	return info, nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
