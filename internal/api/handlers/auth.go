package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/snaproll/server/internal/api/respond"
	"github.com/snaproll/server/internal/auth"
)

type AuthHandler struct {
	hosts    auth.HostStore
	jwt      *auth.JWTManager
	validate *validator.Validate
}

func NewAuthHandler(hosts auth.HostStore, jwt *auth.JWTManager) *AuthHandler {
	return &AuthHandler{hosts: hosts, jwt: jwt, validate: validator.New()}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges host credentials for a JWT. Unknown email and wrong
// password produce the same response so the endpoint does not leak which
// hosts exist.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "malformed request body", err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "email and password are required", err)
		return
	}

	host, err := h.hosts.GetHostByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrHostNotFound) {
			respond.Error(w, r, http.StatusUnauthorized, respond.CodeAuthRequired, "invalid email or password", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "login failed", err)
		return
	}

	if err := auth.VerifyPassword(host.PasswordHash, req.Password); err != nil {
		respond.Error(w, r, http.StatusUnauthorized, respond.CodeAuthRequired, "invalid email or password", err)
		return
	}

	token, err := h.jwt.Generate(host.ID, host.Email)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "token generation failed", err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]string{
		"token": token,
		"email": host.Email,
	})
}
