package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/services"
	"github.com/LovationAdmin/finance-tracker/utils"
)

type AuthHandler struct {
	Ledger *services.LedgerService
	Tokens *utils.TokenManager
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Ledger.Register(req.Username, req.Password)
	if err != nil {
		utils.LogAuthAction("register", req.Username, false)
		respondError(c, err)
		return
	}
	utils.LogAuthAction("register", user.Username, true)

	h.issueToken(c, http.StatusCreated, user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Ledger.Authenticate(req.Username, req.Password, req.TOTPCode)
	if err != nil {
		utils.LogAuthAction("login", req.Username, false)
		respondError(c, err)
		return
	}
	utils.LogAuthAction("login", user.Username, true)

	h.issueToken(c, http.StatusOK, user)
}

func (h *AuthHandler) issueToken(c *gin.Context, status int, user models.User) {
	token, expiresAt, err := h.Tokens.GenerateAccessToken(user.Username, user.CreatedAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(status, models.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Public(),
	})
}
