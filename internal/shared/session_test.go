package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	_ "github.com/guichet-civil/guichet/testing"
)

func newTestSessionManager(t *testing.T) *SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionManager(client, "test_session", "secret", time.Hour, false)
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newTestSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Empty(t, sess.User())

	sess.SetUser("user-1")
	sess.Set("lang", "fr")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "test_session", cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	// A follow-up request carrying the cookie restores the state.
	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(&http.Cookie{Name: "test_session", Value: cookies[0].Value})
	restored, err := sm.Load(ctx, next)
	require.NoError(t, err)
	require.Equal(t, "user-1", restored.User())
	require.Equal(t, "fr", restored.Get("lang"))
}

func TestSessionDestroy(t *testing.T) {
	sm := newTestSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("user-1")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))
	cookie := rec.Result().Cookies()[0]

	sm.Destroy(sess)
	rec2 := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec2, req, sess))
	expired := rec2.Result().Cookies()[0]
	require.Equal(t, -1, expired.MaxAge)

	// The stored payload is gone: a new load yields an anonymous session.
	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(&http.Cookie{Name: "test_session", Value: cookie.Value})
	restored, err := sm.Load(ctx, next)
	require.NoError(t, err)
	require.Empty(t, restored.User())
}

func TestFlashesDrainInOrder(t *testing.T) {
	sess := &Session{ID: "s"}
	require.Nil(t, sess.PopFlash())

	sess.AddFlash(FlashMessage{Kind: "success", Message: "première"})
	sess.AddFlash(FlashMessage{Kind: "error", Message: "seconde"})

	first := sess.PopFlash()
	require.NotNil(t, first)
	require.Equal(t, "première", first.Message)

	second := sess.PopFlash()
	require.NotNil(t, second)
	require.Equal(t, "seconde", second.Message)

	require.Nil(t, sess.PopFlash())
}

func TestCSRFTokens(t *testing.T) {
	m := NewCSRFManager("csrfsecret")
	sess := &Session{ID: "session-1"}
	ctx := context.Background()

	token, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Stable for the lifetime of the session.
	again, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, token, again)

	require.NoError(t, m.VerifyToken(ctx, sess, token))
	require.ErrorIs(t, m.VerifyToken(ctx, sess, "forged"), ErrCSRFTokenMismatch)
	require.ErrorIs(t, m.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	require.ErrorIs(t, m.VerifyToken(ctx, &Session{ID: "other"}, token), ErrCSRFTokenMissing)
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 20, 45)
	require.Equal(t, 2, p.Page)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 45, p.Total)

	// Defaults kick in for out-of-range values.
	p = NewPagination(0, 0, 5)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 1, p.TotalPages)
}
