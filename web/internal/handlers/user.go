package handlers

import (
	"net/http"

	"github.com/devilmonastery/tokengate/internal/auth"
	"github.com/devilmonastery/tokengate/web/internal/middleware"
)

// UserResponse is the verified identity returned by /api/user.
// Times are unix seconds.
type UserResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl"`
	IssuedAt    int64  `json:"issuedAt"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// GetUser returns the claims of the presented credential. It must sit behind
// the bearer middleware.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.GetClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, "No token", "missing_token")
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{
		ID:          claims.UserID,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
		AvatarURL:   claims.AvatarURL,
		IssuedAt:    claims.IssuedAtTime().Unix(),
		ExpiresAt:   claims.ExpiresAtTime().Unix(),
	})
}
