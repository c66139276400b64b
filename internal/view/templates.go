package view

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/guichet-civil/guichet/internal/requests"
	"github.com/guichet-civil/guichet/internal/shared"
	"github.com/guichet-civil/guichet/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Data        any
}

var actLabels = map[requests.ActType]string{
	requests.ActBirth:    "Acte de naissance",
	requests.ActMarriage: "Acte de mariage",
	requests.ActDeath:    "Acte de décès",
}

var statusLabels = map[requests.Status]string{
	requests.StatusPending:        "En attente",
	requests.StatusInReview:       "En cours d'examen",
	requests.StatusApproved:       "Approuvée",
	requests.StatusRejected:       "Rejetée",
	requests.StatusReadyForPickup: "Prête au retrait",
	requests.StatusDelivered:      "Délivrée",
}

var statusColors = map[requests.Status]string{
	requests.StatusPending:        "gray",
	requests.StatusInReview:       "amber",
	requests.StatusApproved:       "green",
	requests.StatusRejected:       "red",
	requests.StatusReadyForPickup: "blue",
	requests.StatusDelivered:      "emerald",
}

// NewEngine parses the embedded templates at startup.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
		"actLabel": func(t requests.ActType) string {
			if label, ok := actLabels[t]; ok {
				return label
			}
			return string(t)
		},
		// Accepts Status or *Status; event previous_status is optional.
		"statusLabel": func(v any) string {
			s, ok := toStatus(v)
			if !ok {
				return ""
			}
			if label, ok := statusLabels[s]; ok {
				return label
			}
			return string(s)
		},
		"statusColor": func(v any) string {
			s, ok := toStatus(v)
			if !ok {
				return "gray"
			}
			if color, ok := statusColors[s]; ok {
				return color
			}
			return "gray"
		},
		"shortID": func(id string) string {
			if len(id) > 8 {
				return id[:8]
			}
			return id
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates,
		"templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

func toStatus(v any) (requests.Status, bool) {
	switch s := v.(type) {
	case requests.Status:
		return s, true
	case *requests.Status:
		if s == nil {
			return "", false
		}
		return *s, true
	}
	return "", false
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}
