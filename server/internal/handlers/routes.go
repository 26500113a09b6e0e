package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devilmonastery/ara/server/internal/middleware"
)

// Router builds the gateway routes
func (h *Handler) Router(authMW *middleware.AuthMiddleware) *mux.Router {
	r := mux.NewRouter()
	r.Use(authMW.Authenticate, middleware.LogRequest(h.log), middleware.Metrics)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/providers", h.Providers).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/logout", h.Logout).Methods(http.MethodPost)
	r.Handle("/api/user/current", authMW.RequireAuth(http.HandlerFunc(h.CurrentUser))).Methods(http.MethodGet)

	if h.users != nil {
		admin := r.PathPrefix("/api/admin").Subrouter()
		admin.Use(authMW.RequireAdmin)
		admin.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
		admin.HandleFunc("/users/{provider}/{login}", h.GetUser).Methods(http.MethodGet)
	}

	r.HandleFunc("/oauth2/authorization/{provider}", h.Authorize).Methods(http.MethodGet)
	r.HandleFunc("/login/oauth2/code/{provider}", h.Callback).Methods(http.MethodGet)

	return r
}
