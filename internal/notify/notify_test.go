package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guichet-civil/guichet/internal/requests"
	_ "github.com/guichet-civil/guichet/testing"
)

func TestStatusBody(t *testing.T) {
	req := &requests.Request{
		ID:        "abcdef12-3456-7890-abcd-ef1234567890",
		TypeOfAct: requests.ActBirth,
	}
	comment := "Pièce justificative manquante"
	ev := &requests.Event{NewStatus: requests.StatusRejected, Comment: &comment}

	body := statusBody(req, ev)
	require.Contains(t, body, "ABCDEF12")
	require.Contains(t, body, "acte de naissance")
	require.Contains(t, body, "rejetée")
	require.Contains(t, body, "Commentaire de l'agent : Pièce justificative manquante")

	ev = &requests.Event{NewStatus: requests.StatusApproved}
	body = statusBody(req, ev)
	require.Contains(t, body, "approuvée")
	require.NotContains(t, body, "Commentaire")
}

func TestStatusPhraseCoversAllStatuses(t *testing.T) {
	for _, s := range requests.AllStatuses() {
		require.NotEqual(t, string(s), statusPhrase(s), "missing label for %s", s)
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.StatusChanged(context.Background(), &requests.Request{}, &requests.Event{})
	require.NoError(t, n.EnqueueMail(context.Background(), "a@b.c", "s", "b"))
}
