package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

func TestGoogleRoutesWithoutConfiguration(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/auth/google/login", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when google is not configured, got %d", rec.Code)
	}
	if NewGoogleSignIn("", "", "", nil) != nil {
		t.Fatalf("expected nil sign-in without client id")
	}
}

// fakeGoogle serves the token and userinfo endpoints of the code flow.
func fakeGoogle(t *testing.T, info googleUserInfo) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "auth-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"google-access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer google-access" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGoogleTestAPI(t *testing.T, info googleUserInfo) *API {
	t.Helper()
	srv := fakeGoogle(t, info)
	return newTestAPI(t, func(o *Options) {
		o.Google = &GoogleSignIn{
			config: &oauth2.Config{
				ClientID:     "client-id",
				ClientSecret: "client-secret",
				RedirectURL:  "http://localhost/api/v1/auth/google/callback",
				Scopes:       []string{"openid", "email", "profile"},
				Endpoint: oauth2.Endpoint{
					AuthURL:   srv.URL + "/auth",
					TokenURL:  srv.URL + "/token",
					AuthStyle: oauth2.AuthStyleInParams,
				},
			},
			userInfoURL: srv.URL + "/userinfo",
		}
	})
}

func startGoogleLogin(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	rec := doJSON(t, h, http.MethodGet, "/api/v1/auth/google/login", "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != oauthStateCookie {
		t.Fatalf("expected state cookie, got %v", cookies)
	}
	if location.Query().Get("state") != cookies[0].Value {
		t.Fatalf("redirect state does not match cookie")
	}
	return cookies[0]
}

func TestGoogleCallbackCreatesCustomer(t *testing.T) {
	api := newGoogleTestAPI(t, googleUserInfo{Email: "Bia@Gmail.com", EmailVerified: true, Name: "Bia"})
	api.google.auth = api.auth
	h := api.Handler()

	state := startGoogleLogin(t, h)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=auth-code&state="+state.Value, nil)
	req.AddCookie(state)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[domain.LoginResponse](t, rec)
	if resp.Profile.Email != "bia@gmail.com" || resp.Profile.IsOwner {
		t.Fatalf("unexpected profile %+v", resp.Profile)
	}
}

func TestGoogleCallbackRejectsStateMismatch(t *testing.T) {
	api := newGoogleTestAPI(t, googleUserInfo{Email: "bia@gmail.com", EmailVerified: true})
	api.google.auth = api.auth
	h := api.Handler()

	state := startGoogleLogin(t, h)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=auth-code&state=forged", nil)
	req.AddCookie(state)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for state mismatch, got %d", rec.Code)
	}
}

func TestGoogleCallbackRequiresVerifiedEmail(t *testing.T) {
	api := newGoogleTestAPI(t, googleUserInfo{Email: "bia@gmail.com", EmailVerified: false})
	api.google.auth = api.auth
	h := api.Handler()

	state := startGoogleLogin(t, h)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?code=auth-code&state="+state.Value, nil)
	req.AddCookie(state)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unverified email, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not verified") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
