// Package backoffice serves the staff area: the triage dashboard, the
// request queue, per-request actions, staff management, and settings.
package backoffice

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/platform/httpx"
	"github.com/guichet-civil/guichet/internal/requests"
	"github.com/guichet-civil/guichet/internal/shared"
	"github.com/guichet-civil/guichet/internal/view"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Settings is the deployment information shown on the settings page.
type Settings struct {
	Env     string
	SiteURL string
}

// Handler renders the /admin pages.
type Handler struct {
	logger    *slog.Logger
	requests  *requests.Service
	staff     *identity.StaffService
	resolver  *identity.Resolver
	templates *view.Engine
	csrf      *shared.CSRFManager
	settings  Settings
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, reqs *requests.Service, staff *identity.StaffService, resolver *identity.Resolver, templates *view.Engine, csrf *shared.CSRFManager, settings Settings) *Handler {
	return &Handler{
		logger:    logger,
		requests:  reqs,
		staff:     staff,
		resolver:  resolver,
		templates: templates,
		csrf:      csrf,
		settings:  settings,
	}
}

// MountRoutes registers the staff routes on the /admin subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Get("/requests", h.listRequests)
	r.Get("/requests/{id}", h.showRequest)
	r.Post("/requests/{id}/status", h.updateStatus)
	r.Post("/requests/{id}/assign", h.assign)
	r.Post("/requests/{id}/notes", h.updateNotes)
	r.Get("/agents", h.listAgents)
	r.Post("/agents", h.createAgent)
	r.Post("/agents/{id}/role", h.updateAgentRole)
	r.Post("/agents/{id}/demote", h.demoteAgent)
	r.Get("/settings", h.showSettings)
}

type homeData struct {
	Counts []requests.StatusCount
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	counts, err := h.requests.CountByStatus(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "pages/admin_home.html", "Back-office", homeData{Counts: counts}, http.StatusOK)
}

type queueData struct {
	Requests     []requests.Request
	Pagination   shared.Pagination
	PrevPage     int
	NextPage     int
	QuerySuffix  string
	FilterStatus string
	FilterType   string
	Search       string
	Statuses     []requests.Status
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}

	filter := requests.ListFilter{
		Search:  strings.TrimSpace(query.Get("q")),
		Page:    page,
		PerPage: 20,
	}
	if raw := query.Get("status"); raw != "" {
		status := requests.Status(raw)
		if status.Valid() {
			filter.Status = &status
		}
	}
	if raw := query.Get("type"); raw != "" {
		actType := requests.ActType(raw)
		if actType.Valid() {
			filter.Type = &actType
		}
	}

	list, total, err := h.requests.ListAll(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data := queueData{
		Requests:    list,
		Pagination:  shared.NewPagination(page, filter.PerPage, total),
		PrevPage:    page - 1,
		NextPage:    page + 1,
		QuerySuffix: querySuffix(filter),
		Search:      filter.Search,
		Statuses:    requests.AllStatuses(),
	}
	if filter.Status != nil {
		data.FilterStatus = string(*filter.Status)
	}
	if filter.Type != nil {
		data.FilterType = string(*filter.Type)
	}
	h.render(w, r, "pages/admin_requests.html", "File des demandes", data, http.StatusOK)
}

// querySuffix rebuilds the non-page query parameters so pagination links keep
// the active filters.
func querySuffix(filter requests.ListFilter) string {
	var b strings.Builder
	if filter.Status != nil {
		fmt.Fprintf(&b, "&status=%s", *filter.Status)
	}
	if filter.Type != nil {
		fmt.Fprintf(&b, "&type=%s", *filter.Type)
	}
	if filter.Search != "" {
		fmt.Fprintf(&b, "&q=%s", url.QueryEscape(filter.Search))
	}
	return b.String()
}

type requestDetailData struct {
	Request    *requests.Request
	Events     []requests.Event
	Statuses   []requests.Status
	Staff      []identity.Profile
	AssignedTo string
}

func (h *Handler) showRequest(w http.ResponseWriter, r *http.Request) {
	h.renderRequestDetail(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) renderRequestDetail(w http.ResponseWriter, r *http.Request, id string) {
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
	staff, err := h.staff.ListStaff(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := requestDetailData{
		Request:  req,
		Events:   events,
		Statuses: requests.AllStatuses(),
		Staff:    staff,
	}
	if req.AssignedTo != nil {
		data.AssignedTo = *req.AssignedTo
	}
	h.render(w, r, "pages/admin_request_detail.html", "Demande", data, http.StatusOK)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	newStatus := requests.Status(r.PostFormValue("status"))
	var comment *string
	if c := strings.TrimSpace(r.PostFormValue("comment")); c != "" {
		comment = &c
	}

	_, err := h.requests.UpdateStatus(r.Context(), id, newStatus, comment)
	sess := shared.SessionFromContext(r.Context())
	switch {
	case errors.Is(err, httpx.ErrValidation):
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Transition de statut refusée."})
		}
	case err != nil:
		h.fail(w, r, err)
		return
	default:
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Statut mis à jour."})
		}
	}
	http.Redirect(w, r, "/admin/requests/"+id, http.StatusSeeOther)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	agentID := r.PostFormValue("agent_id")

	err := h.requests.Assign(r.Context(), id, agentID)
	sess := shared.SessionFromContext(r.Context())
	switch {
	case errors.Is(err, httpx.ErrValidation):
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Affectation impossible : la personne choisie n'est pas un agent."})
		}
	case err != nil:
		h.fail(w, r, err)
		return
	default:
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Demande affectée."})
		}
	}
	http.Redirect(w, r, "/admin/requests/"+id, http.StatusSeeOther)
}

func (h *Handler) updateNotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.requests.AddNote(r.Context(), id, r.PostFormValue("notes")); err != nil {
		h.fail(w, r, err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Notes enregistrées."})
	}
	http.Redirect(w, r, "/admin/requests/"+id, http.StatusSeeOther)
}

type agentsData struct {
	Staff     []identity.Profile
	CanCreate bool
	Errors    map[string]string
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	h.renderAgents(w, r, map[string]string{}, http.StatusOK)
}

func (h *Handler) renderAgents(w http.ResponseWriter, r *http.Request, errs map[string]string, status int) {
	staff, err := h.staff.ListStaff(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := agentsData{
		Staff:     staff,
		CanCreate: h.resolver.IsAdmin(r.Context()),
		Errors:    errs,
	}
	h.render(w, r, "pages/admin_agents.html", "Agents", data, status)
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	input := identity.CreateAgentInput{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Role:     identity.Role(r.PostFormValue("role")),
	}
	if phone := strings.TrimSpace(r.PostFormValue("phone")); phone != "" {
		input.Phone = &phone
	}

	_, err := h.staff.CreateAgent(r.Context(), input)
	switch {
	case errors.Is(err, httpx.ErrDuplicate):
		h.renderAgents(w, r, map[string]string{"general": "Un compte existe déjà pour cet email"}, http.StatusBadRequest)
		return
	case errors.Is(err, httpx.ErrValidation):
		h.renderAgents(w, r, map[string]string{"general": "Formulaire invalide, vérifiez les champs"}, http.StatusBadRequest)
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Agent créé."})
	}
	http.Redirect(w, r, "/admin/agents", http.StatusSeeOther)
}

func (h *Handler) updateAgentRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	agentID := chi.URLParam(r, "id")
	newRole := identity.Role(r.PostFormValue("role"))

	err := h.staff.UpdateRole(r.Context(), agentID, newRole)
	switch {
	case errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrForbidden):
		h.renderAgents(w, r, map[string]string{"general": "Changement de rôle refusé"}, http.StatusBadRequest)
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Rôle mis à jour."})
	}
	http.Redirect(w, r, "/admin/agents", http.StatusSeeOther)
}

func (h *Handler) demoteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	err := h.staff.Demote(r.Context(), agentID)
	switch {
	case errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrForbidden):
		h.renderAgents(w, r, map[string]string{"general": "Impossible de retirer votre propre accès"}, http.StatusBadRequest)
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Accès retiré."})
	}
	http.Redirect(w, r, "/admin/agents", http.StatusSeeOther)
}

type settingsData struct {
	Env     string
	SiteURL string
	Version string
}

func (h *Handler) showSettings(w http.ResponseWriter, r *http.Request) {
	data := settingsData{
		Env:     h.settings.Env,
		SiteURL: h.settings.SiteURL,
		Version: Version,
	}
	h.render(w, r, "pages/admin_settings.html", "Paramètres", data, http.StatusOK)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, httpx.ErrUnauthenticated):
		http.Redirect(w, r, "/admin-login", http.StatusSeeOther)
	case errors.Is(err, httpx.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, httpx.ErrNotFound):
		http.NotFound(w, r)
	default:
		h.logger.Error("backoffice handler", slog.String("path", r.URL.Path), slog.Any("error", err))
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
