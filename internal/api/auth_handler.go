package api

import (
	"net/http"
	"net/url"

	"tmail/internal/secure"

	"github.com/gorilla/mux"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService AuthService
	mailService MailService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService AuthService, mailService MailService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		mailService: mailService,
	}
}

// RegisterRoutes registers public auth routes
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/url", h.authURL).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/domain", h.domains).Methods(http.MethodGet)
}

// RegisterProtectedRoutes registers routes that run behind the bearer middleware
func (h *AuthHandler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/profile", h.profile).Methods(http.MethodGet)
}

// authURL returns the provider authorization URL for the caller's state
func (h *AuthHandler) authURL(w http.ResponseWriter, r *http.Request) {
	resp, err := h.authService.AuthURL(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// login exchanges an authorization code for an API token.
// code and state may come from the query string or a form body.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	resp, err := h.authService.Login(r.Context(), r.FormValue("code"), r.FormValue("state"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// profile returns current user information
func (h *AuthHandler) profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.CurrentUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) domains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mailService.Domains())
}

// MockAuthorizeHandler plays the provider's authorize page: it sends the
// browser straight back to redirectURL with a fresh code and the given state.
func MockAuthorizeHandler(redirectURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if target := q.Get("redirect_uri"); target != "" && target != redirectURL {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "redirect_uri mismatch"})
			return
		}

		code, err := secure.Token()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to generate code"})
			return
		}

		target, err := url.Parse(redirectURL)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "invalid redirect url"})
			return
		}
		params := target.Query()
		params.Set("code", code)
		params.Set("state", q.Get("state"))
		target.RawQuery = params.Encode()

		http.Redirect(w, r, target.String(), http.StatusFound)
	}
}
