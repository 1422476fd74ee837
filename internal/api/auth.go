package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/AaronLay10/NarrativeEngine/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// authConfig holds the basic-auth accounts. Auth is enabled only when admin
// credentials are set; otherwise every request is treated as admin.
type authConfig struct {
	adminUser    string
	adminPass    string
	operatorUser string
	operatorPass string
	enabled      bool
}

func newAuth(c config.Credentials) *authConfig {
	return &authConfig{
		adminUser:    c.AdminUser,
		adminPass:    c.AdminPass,
		operatorUser: c.OperatorUser,
		operatorPass: c.OperatorPass,
		enabled:      c.AdminUser != "" && c.AdminPass != "",
	}
}

// authenticate checks basic auth credentials and returns the role if valid.
// Returns empty string if credentials are invalid.
func (a *authConfig) authenticate(r *http.Request) Role {
	if a == nil || !a.enabled {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if secureCompare(user, a.adminUser) && secureCompare(pass, a.adminPass) {
		return RoleAdmin
	}
	if a.operatorUser != "" && a.operatorPass != "" {
		if secureCompare(user, a.operatorUser) && secureCompare(pass, a.operatorPass) {
			return RoleOperator
		}
	}
	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Narrative Engine"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// requireRole wraps a handler and requires one of the specified roles.
func (a *authConfig) requireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := a.authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// requireAnyRole wraps a handler requiring admin or operator role.
func (a *authConfig) requireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return a.requireRole(handler, RoleAdmin, RoleOperator)
}

// requireAdmin wraps a handler requiring admin role only.
func (a *authConfig) requireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return a.requireRole(handler, RoleAdmin)
}
