package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loungeskip/loungeskip/internal/api"
	"github.com/loungeskip/loungeskip/internal/apperrors"
)

// Service handles login for the management API.
type Service struct {
	issuer   *TokenIssuer
	username string
	password string
}

// NewService creates the auth service with the configured credentials.
func NewService(issuer *TokenIssuer, username, password string) *Service {
	return &Service{issuer: issuer, username: username, password: password}
}

// RegisterRoutes mounts the auth endpoints.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Method("POST", "/auth/login", api.Handler(s.handleLogin))
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	userOK := subtle.ConstantTimeCompare([]byte(body.Username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(body.Password), []byte(s.password)) == 1
	if !userOK || !passOK {
		return apperrors.NewUnauthorizedError("invalid credentials")
	}

	token, err := s.issuer.GenerateToken(body.Username)
	if err != nil {
		return apperrors.NewInternalError("failed to generate token")
	}

	return api.WriteJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}
