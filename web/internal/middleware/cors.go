package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the frontend origin to call the API with credentials
func CORS(frontendURL string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{frontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, ErrorCodeHeader},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}

// ErrorCodeHeader carries the stable error code on non-JSON error responses
const ErrorCodeHeader = "X-Error-Code"
