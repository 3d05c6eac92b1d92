package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/casa-storefront/internal/dto"
	"github.com/flicky/casa-storefront/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
	log *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ToSession(h.svc.Snapshot()))
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req dto.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	snap, err := h.svc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToSession(snap))
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req dto.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.svc.SignUp(c.Request.Context(), service.SignUpRequest{
		Email: req.Email, Password: req.Password, ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, dto.SignUpResponse{
		User:                 dto.ToUser(res.User),
		ConfirmationRequired: res.ConfirmationRequired,
	})
}

// SignOut always reports the resulting anonymous session; a failed remote
// call is surfaced as a warning.
func (h *AuthHandler) SignOut(c *gin.Context) {
	err := h.svc.SignOut(c.Request.Context())
	resp := gin.H{"session": dto.ToSession(h.svc.Snapshot())}
	if err != nil {
		resp["warning"] = "remote sign out failed"
	}
	c.JSON(http.StatusOK, resp)
}
