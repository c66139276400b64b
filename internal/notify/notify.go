// Package notify bridges the portal's domain events to the background mail
// queue and owns SMTP delivery on the worker side.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/guichet-civil/guichet/internal/requests"
	"github.com/guichet-civil/guichet/jobs"
)

// EmailDirectory maps a profile id to its account email.
type EmailDirectory interface {
	EmailFor(ctx context.Context, id string) (string, error)
}

// Notifier enqueues outbound emails. It implements both the request
// lifecycle notifier and the auth mail enqueuer.
type Notifier struct {
	client   *jobs.Client
	accounts EmailDirectory
	logger   *slog.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(client *jobs.Client, accounts EmailDirectory, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, accounts: accounts, logger: logger}
}

// EnqueueMail queues a raw email.
func (n *Notifier) EnqueueMail(ctx context.Context, to, subject, body string) error {
	if n == nil || n.client == nil {
		return nil
	}
	_, err := n.client.EnqueueSendEmail(ctx, jobs.SendEmailPayload{To: to, Subject: subject, Body: body})
	return err
}

// StatusChanged mails the request owner about an applied transition.
// Delivery is best effort; failures are logged, never propagated.
func (n *Notifier) StatusChanged(ctx context.Context, req *requests.Request, ev *requests.Event) {
	if n == nil || n.client == nil || req == nil || ev == nil {
		return
	}
	email, err := n.accounts.EmailFor(ctx, req.CitizenID)
	if err != nil {
		n.logger.Warn("status notification skipped",
			slog.String("request_id", req.ID), slog.Any("error", err))
		return
	}
	subject := fmt.Sprintf("[Guichet] Votre demande %s : %s", shortID(req.ID), statusPhrase(ev.NewStatus))
	if err := n.EnqueueMail(ctx, email, subject, statusBody(req, ev)); err != nil {
		n.logger.Warn("status notification enqueue failed",
			slog.String("request_id", req.ID), slog.Any("error", err))
	}
}

func statusBody(req *requests.Request, ev *requests.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bonjour,\n\nVotre demande %s (%s) est maintenant : %s.\n",
		shortID(req.ID), actPhrase(req.TypeOfAct), statusPhrase(ev.NewStatus))
	if ev.Comment != nil && *ev.Comment != "" {
		fmt.Fprintf(&b, "\nCommentaire de l'agent : %s\n", *ev.Comment)
	}
	b.WriteString("\nVous pouvez suivre votre demande depuis votre espace personnel.\n")
	return b.String()
}

func statusPhrase(s requests.Status) string {
	switch s {
	case requests.StatusPending:
		return "en attente"
	case requests.StatusInReview:
		return "en cours d'examen"
	case requests.StatusApproved:
		return "approuvée"
	case requests.StatusRejected:
		return "rejetée"
	case requests.StatusReadyForPickup:
		return "prête au retrait"
	case requests.StatusDelivered:
		return "délivrée"
	}
	return string(s)
}

func actPhrase(t requests.ActType) string {
	switch t {
	case requests.ActBirth:
		return "acte de naissance"
	case requests.ActMarriage:
		return "acte de mariage"
	case requests.ActDeath:
		return "acte de décès"
	}
	return string(t)
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}
