package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/shared"
)

type staticRoles struct {
	roles map[string]identity.Role
}

func (s staticRoles) RoleFor(ctx context.Context, identityID string) (identity.Role, error) {
	if role, ok := s.roles[identityID]; ok {
		return role, nil
	}
	return identity.RoleCitizen, nil
}

func serveGate(t *testing.T, userID, path string) *httptest.ResponseRecorder {
	t.Helper()
	g := New(staticRoles{roles: map[string]identity.Role{
		"citizen-1": identity.RoleCitizen,
		"agent-1":   identity.RoleAgent,
		"admin-1":   identity.RoleAdmin,
	}}, nil)

	passthrough := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		sess := &shared.Session{ID: "test-session"}
		sess.SetUser(userID)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	g.Middleware(passthrough).ServeHTTP(rec, req)
	return rec
}

func TestGateRoutingTable(t *testing.T) {
	cases := []struct {
		name     string
		userID   string
		path     string
		status   int
		location string
	}{
		{"anonymous landing passes", "", "/", http.StatusOK, ""},
		{"anonymous login passes", "", "/auth/login", http.StatusOK, ""},
		{"anonymous app redirects to login", "", "/app", http.StatusSeeOther, "/auth/login?redirect=%2Fapp"},
		{"anonymous app subpath keeps path", "", "/app/requests/new", http.StatusSeeOther, "/auth/login?redirect=%2Fapp%2Frequests%2Fnew"},
		{"anonymous admin redirects to admin login", "", "/admin/requests", http.StatusSeeOther, "/admin-login?redirect=%2Fadmin%2Frequests"},
		{"anonymous admin login passes", "", "/admin-login", http.StatusOK, ""},
		{"citizen app passes", "citizen-1", "/app", http.StatusOK, ""},
		{"citizen admin bounces home", "citizen-1", "/admin", http.StatusSeeOther, "/app"},
		{"citizen admin login bounces home", "citizen-1", "/admin-login", http.StatusSeeOther, "/app"},
		{"citizen login page bounces home", "citizen-1", "/auth/login", http.StatusSeeOther, "/app"},
		{"agent admin passes", "agent-1", "/admin/requests", http.StatusOK, ""},
		{"agent app bounces to admin", "agent-1", "/app", http.StatusSeeOther, "/admin"},
		{"admin admin passes", "admin-1", "/admin/agents", http.StatusOK, ""},
		{"authenticated callback passes", "citizen-1", "/auth/callback", http.StatusOK, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveGate(t, tc.userID, tc.path)
			require.Equal(t, tc.status, rec.Code)
			if tc.location != "" {
				require.Equal(t, tc.location, rec.Header().Get("Location"))
			}
		})
	}
}
