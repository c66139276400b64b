// Package citizen serves the authenticated citizen area: the request
// dashboard, the submission form, request detail with its timeline, and the
// profile page.
package citizen

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/platform/httpx"
	"github.com/guichet-civil/guichet/internal/requests"
	"github.com/guichet-civil/guichet/internal/shared"
	"github.com/guichet-civil/guichet/internal/view"
	"github.com/guichet-civil/guichet/report"
)

// Handler renders the /app pages.
type Handler struct {
	logger    *slog.Logger
	requests  *requests.Service
	resolver  *identity.Resolver
	templates *view.Engine
	csrf      *shared.CSRFManager
	receipts  *report.Receipts
}

// NewHandler constructs a Handler instance. receipts may be nil when no PDF
// backend is configured.
func NewHandler(logger *slog.Logger, reqs *requests.Service, resolver *identity.Resolver, templates *view.Engine, csrf *shared.CSRFManager, receipts *report.Receipts) *Handler {
	return &Handler{
		logger:    logger,
		requests:  reqs,
		resolver:  resolver,
		templates: templates,
		csrf:      csrf,
		receipts:  receipts,
	}
}

// MountRoutes registers the citizen routes on the /app subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Get("/requests/new", h.showNewRequest)
	r.Post("/requests/new", h.handleNewRequest)
	r.Get("/requests/{id}", h.showRequest)
	r.Get("/requests/{id}/receipt.pdf", h.downloadReceipt)
	r.Get("/profile", h.showProfile)
	r.Post("/profile", h.handleProfile)
}

type homeData struct {
	Requests []requests.Request
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	list, err := h.requests.ListMine(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "pages/app_home.html", "Mes demandes", homeData{Requests: list}, http.StatusOK)
}

// requestForm keeps raw form values as strings so a rejected submission can
// be re-rendered exactly as typed.
type requestForm struct {
	TypeOfAct      string
	PersonFullname string
	FatherName     string
	MotherName     string
	DateOfBirth    string
	PlaceOfBirth   string
	NumberOfCopies string
	Purpose        string
}

type requestFormData struct {
	Form   requestForm
	Errors map[string]string
}

func (h *Handler) showNewRequest(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/request_new.html", "Nouvelle demande", requestFormData{
		Form:   requestForm{NumberOfCopies: "1"},
		Errors: map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) handleNewRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := requestForm{
		TypeOfAct:      r.PostFormValue("type_of_act"),
		PersonFullname: strings.TrimSpace(r.PostFormValue("person_fullname")),
		FatherName:     strings.TrimSpace(r.PostFormValue("father_name")),
		MotherName:     strings.TrimSpace(r.PostFormValue("mother_name")),
		DateOfBirth:    r.PostFormValue("date_of_birth"),
		PlaceOfBirth:   strings.TrimSpace(r.PostFormValue("place_of_birth")),
		NumberOfCopies: r.PostFormValue("number_of_copies"),
		Purpose:        strings.TrimSpace(r.PostFormValue("purpose")),
	}

	input, errs := form.toInput()
	if len(errs) == 0 {
		req, err := h.requests.Create(r.Context(), input)
		switch {
		case errors.Is(err, httpx.ErrValidation):
			errs["general"] = "Le formulaire contient des erreurs, vérifiez les champs."
		case err != nil:
			h.fail(w, r, err)
			return
		default:
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Votre demande a bien été déposée."})
			}
			http.Redirect(w, r, "/app/requests/"+req.ID, http.StatusSeeOther)
			return
		}
	}

	h.render(w, r, "pages/request_new.html", "Nouvelle demande", requestFormData{Form: form, Errors: errs}, http.StatusBadRequest)
}

func (f requestForm) toInput() (requests.CreateInput, map[string]string) {
	errs := make(map[string]string)

	copies, err := strconv.Atoi(f.NumberOfCopies)
	if err != nil || copies < 1 || copies > 10 {
		errs["NumberOfCopies"] = "Entre 1 et 10 copies"
	}
	if f.PersonFullname == "" {
		errs["PersonFullname"] = "Ce champ est obligatoire"
	}

	input := requests.CreateInput{
		TypeOfAct:      requests.ActType(f.TypeOfAct),
		PersonFullname: f.PersonFullname,
		FatherName:     optional(f.FatherName),
		MotherName:     optional(f.MotherName),
		PlaceOfBirth:   optional(f.PlaceOfBirth),
		NumberOfCopies: copies,
		Purpose:        optional(f.Purpose),
	}
	if f.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", f.DateOfBirth)
		if err != nil {
			errs["general"] = "Date de naissance invalide"
		} else {
			input.DateOfBirth = &dob
		}
	}
	return input, errs
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

type requestDetailData struct {
	Request *requests.Request
	Events  []requests.Event
}

func (h *Handler) showRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := h.requests.GetForViewer(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.requests.Events(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "pages/request_detail.html", "Demande", requestDetailData{Request: req, Events: events}, http.StatusOK)
}

func (h *Handler) downloadReceipt(w http.ResponseWriter, r *http.Request) {
	if !h.receipts.Available() {
		http.NotFound(w, r)
		return
	}
	id := chi.URLParam(r, "id")
	req, err := h.requests.GetForViewer(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pdf, err := h.receipts.Render(r.Context(), req)
	if err != nil {
		h.logger.Error("render receipt", slog.String("request_id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="recepisse.pdf"`)
	_, _ = w.Write(pdf)
}

type profileForm struct {
	FullName   string
	Phone      string
	NationalID string
}

type profileData struct {
	Form   profileForm
	Errors map[string]string
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.resolver.CurrentProfile(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form := profileForm{FullName: profile.FullName}
	if profile.Phone != nil {
		form.Phone = *profile.Phone
	}
	if profile.NationalID != nil {
		form.NationalID = *profile.NationalID
	}
	h.render(w, r, "pages/profile.html", "Mon profil", profileData{Form: form, Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := profileForm{
		FullName:   strings.TrimSpace(r.PostFormValue("full_name")),
		Phone:      strings.TrimSpace(r.PostFormValue("phone")),
		NationalID: strings.TrimSpace(r.PostFormValue("national_id")),
	}
	if form.FullName == "" {
		h.render(w, r, "pages/profile.html", "Mon profil", profileData{
			Form:   form,
			Errors: map[string]string{"general": "Le nom complet est obligatoire"},
		}, http.StatusBadRequest)
		return
	}

	upd := identity.ProfileUpdate{FullName: &form.FullName}
	if form.Phone != "" {
		upd.Phone = &form.Phone
	}
	if form.NationalID != "" {
		upd.NationalID = &form.NationalID
	}
	if err := h.resolver.UpdateProfile(r.Context(), upd); err != nil {
		h.fail(w, r, err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Profil mis à jour."})
	}
	http.Redirect(w, r, "/app/profile", http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, httpx.ErrUnauthenticated):
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
	case errors.Is(err, httpx.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, httpx.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	default:
		h.logger.Error("citizen handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, page, view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}); err != nil {
		h.logger.Error("render "+page, slog.Any("error", err))
	}
}
