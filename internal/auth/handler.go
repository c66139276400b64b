package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/platform/httpx"
	"github.com/guichet-civil/guichet/internal/shared"
	"github.com/guichet-civil/guichet/internal/view"
)

// Handler wires HTTP endpoints for authentication flows: citizen login and
// signup, the staff login page, magic links, the session-exchange callback,
// and logout.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers the /auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/signup", h.showSignup)
	r.Post("/signup", h.handleSignup)
	r.Post("/magic", h.handleMagicLink)
	r.Get("/callback", h.handleCallback)
	r.Get("/auth-error", h.showAuthError)
	r.Post("/logout", h.handleLogout)
}

// MountAdminLogin registers the back-office login entry point.
func (h *Handler) MountAdminLogin(r chi.Router) {
	r.Get("/admin-login", h.showAdminLogin)
	r.Post("/admin-login", h.handleAdminLogin)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type signupForm struct {
	FullName string `validate:"omitempty,max=200"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form     loginForm
	Errors   map[string]string
	Redirect string
}

type signupPageData struct {
	Form   signupForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, "pages/login.html", "Connexion", loginPageData{
		Redirect: sanitizeRedirect(r.URL.Query().Get("redirect")),
	}, http.StatusOK)
}

func (h *Handler) showAdminLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, "pages/admin_login.html", "Back-office", loginPageData{
		Redirect: sanitizeRedirect(r.URL.Query().Get("redirect")),
	}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, "pages/login.html", "Connexion", "/app")
}

func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, "pages/admin_login.html", "Back-office", "/admin")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, page, title, fallback string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	redirect := sanitizeRedirect(r.PostFormValue("redirect"))

	errs := h.validateForm(form)
	if len(errs) == 0 {
		_, profile, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err != nil {
			errs["general"] = "Email ou mot de passe invalide"
		} else {
			h.openSession(r, profile)
			http.Redirect(w, r, loginTarget(profile.Role, redirect, fallback), http.StatusSeeOther)
			return
		}
	}

	h.renderLogin(w, r, page, title, loginPageData{Form: form, Errors: errs, Redirect: redirect}, http.StatusBadRequest)
}

func (h *Handler) showSignup(w http.ResponseWriter, r *http.Request) {
	h.renderSignup(w, r, signupPageData{}, http.StatusOK)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := signupForm{
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	errs := h.validateForm(form)
	if len(errs) == 0 {
		_, profile, err := h.service.SignUp(r.Context(), form.Email, form.Password, form.FullName)
		switch {
		case errors.Is(err, httpx.ErrDuplicate):
			errs["general"] = "Un compte existe déjà pour cet email"
		case err != nil:
			h.logger.Error("signup", slog.Any("error", err))
			errs["general"] = "Erreur lors de la création du compte"
		default:
			h.openSession(r, profile)
			sess := shared.SessionFromContext(r.Context())
			if sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Bienvenue ! Votre compte a été créé."})
			}
			http.Redirect(w, r, "/app", http.StatusSeeOther)
			return
		}
	}

	h.renderSignup(w, r, signupPageData{Form: form, Errors: errs}, http.StatusBadRequest)
}

func (h *Handler) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	email := r.PostFormValue("email")
	redirect := sanitizeRedirect(r.PostFormValue("redirect"))

	if err := h.service.StartMagicLink(r.Context(), email, redirect); err != nil {
		h.logger.Error("start magic link", slog.Any("error", err))
	}
	// Always the same answer, known address or not.
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "info", Message: "Si un compte existe pour cet email, un lien de connexion vient d'être envoyé."})
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// handleCallback exchanges a one-time code for a session, then redirects by
// role the way the original OAuth-style callback did.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/auth/auth-error", http.StatusSeeOther)
		return
	}
	_, profile, err := h.service.ExchangeCode(r.Context(), code)
	if err != nil {
		if !errors.Is(err, httpx.ErrNotFound) {
			h.logger.Error("exchange code", slog.Any("error", err))
		}
		http.Redirect(w, r, "/auth/auth-error", http.StatusSeeOther)
		return
	}
	h.openSession(r, profile)

	redirect := sanitizeRedirect(r.URL.Query().Get("redirect"))
	http.Redirect(w, r, loginTarget(profile.Role, redirect, "/app"), http.StatusSeeOther)
}

func (h *Handler) showAuthError(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth_error.html", "Lien invalide", nil, http.StatusOK)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	target := "/"
	if sess != nil {
		if strings.Contains(r.Referer(), "/admin") {
			target = "/admin-login"
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) openSession(r *http.Request, profile *identity.Profile) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		return
	}
	sess.SetUser(profile.ID)
}

func (h *Handler) validateForm(form any) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = friendlyFieldError(fieldErr)
			}
		} else {
			errs["general"] = "Formulaire invalide"
		}
	}
	return errs
}

func friendlyFieldError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "Ce champ est obligatoire"
	case "email":
		return "Adresse email invalide"
	case "min":
		return "Trop court (8 caractères minimum)"
	default:
		return "Valeur invalide"
	}
}

// loginTarget picks the post-login destination: the preserved redirect when
// compatible with the role, the role home otherwise.
func loginTarget(role identity.Role, redirect, fallback string) string {
	home := "/app"
	if role.IsStaff() {
		home = "/admin"
	}
	if redirect == "" {
		if role.IsStaff() {
			return home
		}
		return fallback
	}
	staffPath := strings.HasPrefix(redirect, "/admin")
	if staffPath != role.IsStaff() {
		return home
	}
	return redirect
}

// sanitizeRedirect keeps only site-local paths so the login flow cannot be
// used as an open redirect.
func sanitizeRedirect(raw string) string {
	if raw == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") {
		return ""
	}
	return decoded
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, page, title string, data loginPageData, status int) {
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}
	h.render(w, r, page, title, data, status)
}

func (h *Handler) renderSignup(w http.ResponseWriter, r *http.Request, data signupPageData, status int) {
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}
	h.render(w, r, "pages/signup.html", "Créer un compte", data, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.Render(w, page, viewData); err != nil {
		h.logger.Error("render "+page, slog.Any("error", err))
	}
}
