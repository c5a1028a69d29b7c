package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RouterOptions 路由可选项
type RouterOptions struct {
	// MockAuthorize, when non-nil, is served at /mock/oauth/authorize.
	MockAuthorize http.Handler
	// HealthChecks are run by /health.
	HealthChecks map[string]HealthCheck
}

// NewRouter 创建路由并注册所有 handler
func NewRouter(authHandler *AuthHandler, mailHandler *MailHandler, authMiddleware func(http.Handler) http.Handler, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint (public, no auth)
	r.HandleFunc("/health", NewHealthHandler(opts.HealthChecks)).Methods(http.MethodGet)

	if opts.MockAuthorize != nil {
		r.Handle("/mock/oauth/authorize", opts.MockAuthorize).Methods(http.MethodGet)
	}

	apiRouter := r.PathPrefix("/api").Subrouter()

	// Public auth routes (no middleware)
	authHandler.RegisterRoutes(apiRouter)

	// Protected API routes
	protected := apiRouter.NewRoute().Subrouter()
	protected.Use(authMiddleware)
	authHandler.RegisterProtectedRoutes(protected)
	mailHandler.RegisterRoutes(protected)

	return r
}
