package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/shared"
	"github.com/guichet-civil/guichet/internal/view"
)

func newTestHandler(t *testing.T) (*Handler, *shared.SessionManager, *stubAccountRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	codes := NewCodeStore(redisClient, 15*time.Minute)
	repo := newStubAccountRepo()
	svc := NewService(repo, codes, identity.NewResolver(newStubProfiles()), &mailSink{}, "https://guichet.example")
	handler := NewHandler(nil, svc, templates, sessionManager, csrfManager)
	return handler, sessionManager, repo
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	return req.WithContext(ctx), sess
}

func TestShowLoginRendersForm(t *testing.T) {
	handler, sessionManager, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req, _ = withSession(t, sessionManager, req)
	rec := httptest.NewRecorder()
	handler.showLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "<form")
	require.Contains(t, rec.Body.String(), `name="email"`)
}

func TestLoginInvalidCredentials(t *testing.T) {
	handler, sessionManager, repo := newTestHandler(t)
	repo.addAccount("user-1", "helene@example.com", "motdepasse", true)

	form := url.Values{}
	form.Set("email", "helene@example.com")
	form.Set("password", "mauvais-mdp")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, _ = withSession(t, sessionManager, req)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Email ou mot de passe invalide")
}

func TestLoginSuccessBindsSessionAndRedirects(t *testing.T) {
	handler, sessionManager, repo := newTestHandler(t)
	repo.addAccount("user-1", "helene@example.com", "motdepasse", true)

	form := url.Values{}
	form.Set("email", "helene@example.com")
	form.Set("password", "motdepasse")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, sess := withSession(t, sessionManager, req)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/app", rec.Header().Get("Location"))
	require.Equal(t, "user-1", sess.User())
}

func TestCallbackWithoutCode(t *testing.T) {
	handler, sessionManager, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	req, _ = withSession(t, sessionManager, req)
	rec := httptest.NewRecorder()
	handler.handleCallback(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/auth/auth-error", rec.Header().Get("Location"))
}

func TestSanitizeRedirect(t *testing.T) {
	require.Equal(t, "/app/requests/new", sanitizeRedirect("%2Fapp%2Frequests%2Fnew"))
	require.Equal(t, "/admin", sanitizeRedirect("/admin"))
	require.Equal(t, "", sanitizeRedirect("https://evil.example/"))
	require.Equal(t, "", sanitizeRedirect("//evil.example"))
	require.Equal(t, "", sanitizeRedirect(""))
}

func TestLoginTargetMatchesRole(t *testing.T) {
	require.Equal(t, "/app", loginTarget(identity.RoleCitizen, "", "/app"))
	require.Equal(t, "/admin", loginTarget(identity.RoleAgent, "", "/app"))
	require.Equal(t, "/app/requests/new", loginTarget(identity.RoleCitizen, "/app/requests/new", "/app"))
	// A citizen carrying a staff redirect lands home, and vice versa.
	require.Equal(t, "/app", loginTarget(identity.RoleCitizen, "/admin/requests", "/app"))
	require.Equal(t, "/admin", loginTarget(identity.RoleAdmin, "/app/profile", "/admin"))
	require.Equal(t, "/admin/requests", loginTarget(identity.RoleAgent, "/admin/requests", "/admin"))
}
