package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func authConfig(t *testing.T) config.WebConfig {
	t.Helper()
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	return config.WebConfig{
		Enabled:      true,
		AuthRequired: true,
		Username:     "admin",
		PasswordHash: hash,
		JWTSecret:    testSecret,
		TokenTTL:     time.Hour,
	}
}

func TestAuthenticator_LoginAndParse(t *testing.T) {
	a := NewAuthenticator(authConfig(t))

	token, expires, err := a.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Errorf("Expected expiry about an hour out, got %v", expires)
	}

	subject, err := a.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if subject != "admin" {
		t.Errorf("Expected subject admin, got %q", subject)
	}
}

func TestAuthenticator_RejectsBadCredentials(t *testing.T) {
	a := NewAuthenticator(authConfig(t))

	cases := []struct{ user, pass string }{
		{"admin", "wrong"},
		{"root", "hunter2"},
		{"", ""},
	}
	for _, tc := range cases {
		if _, _, err := a.Login(tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q, %q): expected ErrInvalidCredentials, got %v", tc.user, tc.pass, err)
		}
	}
}

func TestAuthenticator_RejectsBadTokens(t *testing.T) {
	cfg := authConfig(t)
	a := NewAuthenticator(cfg)
	token, _, err := a.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	t.Run("garbage", func(t *testing.T) {
		if _, err := a.ParseToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("other secret", func(t *testing.T) {
		other := cfg
		other.JWTSecret = "fedcba9876543210fedcba9876543210"
		if _, err := NewAuthenticator(other).ParseToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { a.now = time.Now }()
		if _, err := a.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken for expired token, got %v", err)
		}
	})
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword("  "); err == nil {
		t.Error("Expected error for empty password")
	}
}

func TestServer_LoginFlow(t *testing.T) {
	env := newTestEnv(t, authConfig(t), false)
	router := env.server.Router()

	// protected route without a token
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/devices", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", w.Code)
	}

	// health stays public
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected public health endpoint, got %d", w.Code)
	}

	// wrong password
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "nope"})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad password, got %d", w.Code)
	}

	// missing fields
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty login, got %d", w.Code)
	}

	body, _ = json.Marshal(map[string]string{"username": "admin", "password": "hunter2"})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for login, got %d: %s", w.Code, w.Body.String())
	}
	var login struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("Failed to decode login response: %v", err)
	}
	if login.Token == "" || login.TokenType != "Bearer" {
		t.Fatalf("Unexpected login response %+v", login)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	req.Header.Set("Authorization", "Token "+login.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for non-bearer scheme, got %d", w.Code)
	}
}

func TestServer_LoginDisabled(t *testing.T) {
	env := newTestEnv(t, config.WebConfig{}, false)
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"a","password":"b"}`)))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when auth is disabled, got %d", w.Code)
	}
}
