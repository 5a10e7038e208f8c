package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/clipdeck/clipdeck/internal/server/auth"
	"github.com/clipdeck/clipdeck/internal/server/config"
	"github.com/clipdeck/clipdeck/internal/server/response"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthHandler struct {
	cfg       *config.Config
	validator *validator.Validate
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg, validator: validator.New()}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if req.Username != h.cfg.Auth.User || req.Password != h.cfg.Auth.Password {
		response.Unauthorized(w, "invalid credentials")
		return
	}

	h.issueTokens(w, req.Username)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	userID, err := auth.GetUserIDFromToken(req.RefreshToken, []byte(h.cfg.JWT.Secret))
	if err != nil {
		response.Unauthorized(w, "invalid or expired refresh token")
		return
	}

	h.issueTokens(w, userID)
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, userID string) {
	access, err := auth.GenerateToken(userID, []byte(h.cfg.JWT.Secret), h.cfg.JWT.Expiration)
	if err != nil {
		response.InternalError(w, "failed to issue token")
		return
	}
	refresh, err := auth.GenerateToken(userID, []byte(h.cfg.JWT.Secret), h.cfg.JWT.RefreshTokenExpiration)
	if err != nil {
		response.InternalError(w, "failed to issue token")
		return
	}

	response.Success(w, tokenResponse{AccessToken: access, RefreshToken: refresh})
}

// EntitlementsHandler reports the quota tier for the authenticated user.
type EntitlementsHandler struct {
	cfg *config.Config
}

func NewEntitlementsHandler(cfg *config.Config) *EntitlementsHandler {
	return &EntitlementsHandler{cfg: cfg}
}

func (h *EntitlementsHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]int{
		"max_records":    h.cfg.Entitlements.MaxRecords,
		"max_categories": h.cfg.Entitlements.MaxCategories,
	})
}
