package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AaronLay10/NarrativeEngine/internal/config"
)

var testCredentials = config.Credentials{
	AdminUser:    "admin",
	AdminPass:    "secret",
	OperatorUser: "operator",
	OperatorPass: "opsecret",
}

// marks wraps a handler that records whether it ran.
func marks(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func serve(h http.HandlerFunc, user, pass string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestAuthDisabledWithoutAdminCredentials(t *testing.T) {
	a := newAuth(config.Credentials{OperatorUser: "operator", OperatorPass: "opsecret"})
	if a.enabled {
		t.Error("auth should be disabled when admin credentials are not set")
	}

	called := false
	w := serve(a.requireAdmin(marks(&called)), "", "")
	if !called {
		t.Error("handler should be called when auth is disabled")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestNilAuthAllowsEverything(t *testing.T) {
	var a *authConfig
	if role := a.authenticate(httptest.NewRequest("GET", "/", nil)); role != RoleAdmin {
		t.Errorf("nil auth role = %q, want admin", role)
	}
}

func TestAuthEnabledRequiresCredentials(t *testing.T) {
	a := newAuth(testCredentials)
	if !a.enabled {
		t.Fatal("auth should be enabled")
	}

	called := false
	w := serve(a.requireAnyRole(marks(&called)), "", "")
	if called {
		t.Error("handler should NOT be called without credentials")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestRoleChecks(t *testing.T) {
	a := newAuth(testCredentials)
	tests := []struct {
		name      string
		adminOnly bool
		user      string
		pass      string
		want      int
	}{
		{"admin any role", false, "admin", "secret", http.StatusOK},
		{"operator any role", false, "operator", "opsecret", http.StatusOK},
		{"wrong password", false, "admin", "wrongpassword", http.StatusUnauthorized},
		{"admin only allows admin", true, "admin", "secret", http.StatusOK},
		{"admin only rejects operator", true, "operator", "opsecret", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := a.requireAnyRole(marks(&called))
			if tt.adminOnly {
				h = a.requireAdmin(marks(&called))
			}
			w := serve(h, tt.user, tt.pass)
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
		})
	}
}

func TestAuthWithOnlyAdminConfigured(t *testing.T) {
	a := newAuth(config.Credentials{AdminUser: "admin", AdminPass: "secret"})

	called := false
	if w := serve(a.requireAnyRole(marks(&called)), "admin", "secret"); w.Code != http.StatusOK || !called {
		t.Errorf("admin: status %d, called %v", w.Code, called)
	}

	called = false
	w := serve(a.requireAnyRole(marks(&called)), "operator", "anything")
	if called {
		t.Error("handler should NOT be called with unconfigured operator")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestServerAuthEnabled(t *testing.T) {
	if New(Options{}).AuthEnabled() {
		t.Error("server without credentials should not enable auth")
	}
	if !New(Options{Credentials: testCredentials}).AuthEnabled() {
		t.Error("server with admin credentials should enable auth")
	}
}

func TestSecureCompare(t *testing.T) {
	if !secureCompare("test", "test") {
		t.Error("identical strings should match")
	}
	if secureCompare("test", "Test") {
		t.Error("different case should not match")
	}
	if secureCompare("test", "test1") {
		t.Error("different strings should not match")
	}
	if secureCompare("", "test") {
		t.Error("empty vs non-empty should not match")
	}
}
