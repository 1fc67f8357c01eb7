package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/devilmonastery/tokengate/web/internal/middleware"
)

// NewRouter sets up the HTTP router with all routes and middleware
func NewRouter(h *Handler, authMw *middleware.AuthMiddleware, logger *slog.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.LogRequest(logger))

	// Health check endpoint (no auth required)
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/version", h.VersionInfo).Methods("GET")

	// Login flow; the /auth/google paths are the provider-named aliases
	router.HandleFunc("/auth/login", h.Login).Methods("GET")
	router.HandleFunc("/auth/google", h.Login).Methods("GET")
	router.HandleFunc("/auth/callback", h.AuthCallback).Methods("GET")
	router.HandleFunc("/auth/google/callback", h.AuthCallback).Methods("GET")
	router.HandleFunc("/auth/logout", h.Logout).Methods("GET", "POST")
	router.HandleFunc("/logout", h.Logout).Methods("GET", "POST")

	// API routes (bearer credential required)
	api := router.PathPrefix("/api").Subrouter()
	api.Handle("/user", authMw.RequireBearer(http.HandlerFunc(h.GetUser))).Methods("GET")

	// CORS wraps the router so preflight requests never reach route matching
	return middleware.CORS(h.frontendURL)(router)
}
