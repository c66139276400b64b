package report

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/guichet-civil/guichet/internal/requests"
)

// Receipts renders the récépissé de dépôt handed to citizens as a PDF.
// A nil receiver means no rendering backend is configured.
type Receipts struct {
	client *Client
	logger *slog.Logger
}

// NewReceipts constructs the receipt renderer.
func NewReceipts(client *Client, logger *slog.Logger) *Receipts {
	return &Receipts{client: client, logger: logger}
}

// Available reports whether a rendering backend is configured.
func (r *Receipts) Available() bool {
	return r != nil && r.client != nil
}

type receiptData struct {
	Reference   string
	ActLabel    string
	Person      string
	FatherName  string
	MotherName  string
	BirthDate   string
	BirthPlace  string
	Copies      int
	Purpose     string
	StatusLabel string
	CreatedAt   string
	GeneratedAt string
}

// Render produces the receipt PDF for one request.
func (r *Receipts) Render(ctx context.Context, req *requests.Request) ([]byte, error) {
	data := receiptData{
		Reference:   reference(req.ID),
		ActLabel:    actLabel(req.TypeOfAct),
		Person:      req.PersonFullname,
		Copies:      req.NumberOfCopies,
		StatusLabel: statusLabel(req.Status),
		CreatedAt:   req.CreatedAt.Format("02/01/2006 à 15:04"),
		GeneratedAt: time.Now().Format("02/01/2006 à 15:04"),
	}
	if req.FatherName != nil {
		data.FatherName = *req.FatherName
	}
	if req.MotherName != nil {
		data.MotherName = *req.MotherName
	}
	if req.DateOfBirth != nil {
		data.BirthDate = req.DateOfBirth.Format("02/01/2006")
	}
	if req.PlaceOfBirth != nil {
		data.BirthPlace = *req.PlaceOfBirth
	}
	if req.Purpose != nil {
		data.Purpose = *req.Purpose
	}

	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, buf.String())
}

func reference(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

func actLabel(t requests.ActType) string {
	switch t {
	case requests.ActBirth:
		return "Acte de naissance"
	case requests.ActMarriage:
		return "Acte de mariage"
	case requests.ActDeath:
		return "Acte de décès"
	}
	return string(t)
}

func statusLabel(s requests.Status) string {
	switch s {
	case requests.StatusPending:
		return "En attente"
	case requests.StatusInReview:
		return "En cours d'examen"
	case requests.StatusApproved:
		return "Approuvée"
	case requests.StatusRejected:
		return "Rejetée"
	case requests.StatusReadyForPickup:
		return "Prête au retrait"
	case requests.StatusDelivered:
		return "Délivrée"
	}
	return string(s)
}

var receiptTmpl = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>Récépissé {{.Reference}}</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; margin: 3em; color: #1a1a1a; }
  header { border-bottom: 2px solid #1a1a1a; padding-bottom: 1em; margin-bottom: 2em; }
  h1 { font-size: 1.4em; margin: 0; }
  .ref { color: #555; }
  dl { display: grid; grid-template-columns: 14em 1fr; row-gap: .4em; }
  dt { font-weight: bold; }
  dd { margin: 0; }
  footer { margin-top: 3em; font-size: .8em; color: #555; }
</style>
</head>
<body>
<header>
  <h1>Guichet des actes d'état civil</h1>
  <p class="ref">Récépissé de dépôt de la demande {{.Reference}}</p>
</header>
<dl>
  <dt>Type d'acte</dt><dd>{{.ActLabel}}</dd>
  <dt>Personne concernée</dt><dd>{{.Person}}</dd>
  {{if .FatherName}}<dt>Père</dt><dd>{{.FatherName}}</dd>{{end}}
  {{if .MotherName}}<dt>Mère</dt><dd>{{.MotherName}}</dd>{{end}}
  {{if .BirthDate}}<dt>Date de naissance</dt><dd>{{.BirthDate}}</dd>{{end}}
  {{if .BirthPlace}}<dt>Lieu de naissance</dt><dd>{{.BirthPlace}}</dd>{{end}}
  <dt>Nombre de copies</dt><dd>{{.Copies}}</dd>
  {{if .Purpose}}<dt>Motif</dt><dd>{{.Purpose}}</dd>{{end}}
  <dt>Statut</dt><dd>{{.StatusLabel}}</dd>
  <dt>Déposée le</dt><dd>{{.CreatedAt}}</dd>
</dl>
<footer>
  <p>Ce récépissé atteste du dépôt de la demande. Il ne vaut pas délivrance de l'acte.</p>
  <p>Document généré le {{.GeneratedAt}}.</p>
</footer>
</body>
</html>`))
