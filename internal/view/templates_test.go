package view

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guichet-civil/guichet/internal/requests"
	"github.com/guichet-civil/guichet/internal/shared"
	_ "github.com/guichet-civil/guichet/testing"
)

func TestEngineParsesAllTemplates(t *testing.T) {
	_, err := NewEngine()
	require.NoError(t, err)
}

func TestRenderLandingPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/landing.html", TemplateData{
		Title:     "Accueil",
		CSRFToken: "token",
		Flash:     &shared.FlashMessage{Kind: "info", Message: "Bonjour"},
	})
	require.NoError(t, err)
	require.Contains(t, rec.Body.String(), "Demandez vos actes")
	require.Contains(t, rec.Body.String(), "flash-info")
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestRenderTimelineHandlesOptionalStatuses(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	previous := requests.StatusPending
	comment := "Dossier complet"
	events := []requests.Event{
		{NewStatus: requests.StatusPending, CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{PreviousStatus: &previous, NewStatus: requests.StatusInReview, Comment: &comment,
			CreatedAt: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)},
	}

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/request_detail.html", TemplateData{
		Title: "Demande",
		Data: map[string]any{
			"Request": &requests.Request{
				ID:             "abcdef12-3456-7890-abcd-ef1234567890",
				TypeOfAct:      requests.ActBirth,
				PersonFullname: "Hélène Faye",
				NumberOfCopies: 2,
				Status:         requests.StatusInReview,
				CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			},
			"Events": events,
		},
	})
	require.NoError(t, err)
	body := rec.Body.String()
	require.Contains(t, body, "En attente")
	require.Contains(t, body, "En cours d'examen")
	require.Contains(t, body, "Dossier complet")
	require.Contains(t, body, "abcdef12")
}

func TestStatusHelpers(t *testing.T) {
	s, ok := toStatus(requests.StatusApproved)
	require.True(t, ok)
	require.Equal(t, requests.StatusApproved, s)

	ptr := requests.StatusRejected
	s, ok = toStatus(&ptr)
	require.True(t, ok)
	require.Equal(t, requests.StatusRejected, s)

	_, ok = toStatus((*requests.Status)(nil))
	require.False(t, ok)

	_, ok = toStatus(42)
	require.False(t, ok)
}
