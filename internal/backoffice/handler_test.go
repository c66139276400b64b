package backoffice

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/guichet-civil/guichet/internal/requests"
	"github.com/guichet-civil/guichet/internal/shared"
	"github.com/guichet-civil/guichet/internal/view"
	_ "github.com/guichet-civil/guichet/testing"
)

func TestShowSettings(t *testing.T) {
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := NewHandler(nil, nil, nil, nil, templates, shared.NewCSRFManager("csrfsecret"), Settings{
		Env:     "test",
		SiteURL: "https://guichet.example",
	})

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &shared.Session{ID: "session-1"}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	router.Route("/admin", handler.MountRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/settings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "https://guichet.example")
	require.Contains(t, rec.Body.String(), "test")
}

func TestQuerySuffix(t *testing.T) {
	require.Equal(t, "", querySuffix(requests.ListFilter{}))

	status := requests.StatusPending
	actType := requests.ActBirth
	require.Equal(t, "&status=pending&type=birth",
		querySuffix(requests.ListFilter{Status: &status, Type: &actType}))

	require.Equal(t, "&q=h%C3%A9l%C3%A8ne+faye",
		querySuffix(requests.ListFilter{Search: "hélène faye"}))
}
