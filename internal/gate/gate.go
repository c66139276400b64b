// Package gate is the single admission-control point: it classifies every
// navigable request path and redirects unauthenticated or wrong-role traffic
// before any page renders. Page handlers do not re-validate access except
// where role-specific data is fetched.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/shared"
)

const (
	adminLoginPath = "/admin-login"
	adminPrefix    = "/admin"
	appPrefix      = "/app"
	authPrefix     = "/auth"
	callbackPath   = "/auth/callback"

	citizenHome = "/app"
	staffHome   = "/admin"
)

// RoleSource answers role questions for the gate. It must never write;
// profile creation belongs to login, not to routing.
type RoleSource interface {
	RoleFor(ctx context.Context, identityID string) (identity.Role, error)
}

// Gate redirects traffic according to authentication state and role.
type Gate struct {
	roles  RoleSource
	logger *slog.Logger
}

// New constructs a Gate.
func New(roles RoleSource, logger *slog.Logger) *Gate {
	return &Gate{roles: roles, logger: logger}
}

// Middleware classifies the request path and enforces the routing table.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		isAdminLogin := path == adminLoginPath
		isAdminSection := strings.HasPrefix(path, adminPrefix) && !isAdminLogin
		isAppSection := strings.HasPrefix(path, appPrefix)
		isAuthSection := strings.HasPrefix(path, authPrefix)
		isCallback := path == callbackPath

		sess := shared.SessionFromContext(r.Context())
		authenticated := sess != nil && sess.User() != ""

		// Unauthenticated traffic into a protected section goes to the
		// matching login page, keeping the requested path for after login.
		if !authenticated && (isAdminSection || isAppSection) {
			target := "/auth/login"
			if isAdminSection {
				target = adminLoginPath
			}
			http.Redirect(w, r, target+"?redirect="+url.QueryEscape(path), http.StatusSeeOther)
			return
		}

		if authenticated && (isAdminSection || isAppSection || isAdminLogin || isAuthSection) {
			role, err := g.roles.RoleFor(r.Context(), sess.User())
			if err != nil {
				if g.logger != nil {
					g.logger.Error("gate: resolve role", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			switch {
			case isAppSection && role.IsStaff():
				http.Redirect(w, r, staffHome, http.StatusSeeOther)
				return
			case isAdminSection && !role.IsStaff():
				http.Redirect(w, r, citizenHome, http.StatusSeeOther)
				return
			case (isAdminLogin || (isAuthSection && !isCallback)) && path != "/auth/logout":
				// Logged-in users have no business on login pages; the
				// callback stays reachable for session exchange.
				home := citizenHome
				if role.IsStaff() {
					home = staffHome
				}
				http.Redirect(w, r, home, http.StatusSeeOther)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
