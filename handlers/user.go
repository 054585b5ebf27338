package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-tracker/middleware"
	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/services"
	"github.com/LovationAdmin/finance-tracker/utils"
)

type UserHandler struct {
	Ledger *services.LedgerService
	// Profiles is nil when the remote backend is not configured.
	Profiles *services.ProfileService
}

// ============================================================================
// ACCOUNT
// ============================================================================

func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.Ledger.GetUser(middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Ledger.ChangePassword(userID, req.CurrentPassword, req.NewPassword); err != nil {
		utils.LogAuthAction("change_password", userID, false)
		respondError(c, err)
		return
	}
	utils.LogAuthAction("change_password", userID, true)

	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

// ============================================================================
// TWO-FACTOR AUTHENTICATION
// ============================================================================

func (h *UserHandler) SetupTOTP(c *gin.Context) {
	setup, err := h.Ledger.SetupTOTP(middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setup)
}

func (h *UserHandler) VerifyTOTP(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req models.VerifyTOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Ledger.EnableTOTP(userID, req.Code); err != nil {
		respondError(c, err)
		return
	}
	utils.LogAuthAction("enable_2fa", userID, true)

	c.JSON(http.StatusOK, gin.H{"message": "2FA enabled successfully", "totp_enabled": true})
}

func (h *UserHandler) DisableTOTP(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req models.DisableTOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Ledger.DisableTOTP(userID, req.Password); err != nil {
		respondError(c, err)
		return
	}
	utils.LogAuthAction("disable_2fa", userID, true)

	c.JSON(http.StatusOK, gin.H{"message": "2FA disabled successfully", "totp_enabled": false})
}

// ============================================================================
// DELETE & EXPORT
// ============================================================================

func (h *UserHandler) DeleteAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req models.DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Ledger.DeleteAccount(userID, req.Password); err != nil {
		utils.LogAuthAction("delete_account", userID, false)
		respondError(c, err)
		return
	}
	utils.LogAuthAction("delete_account", userID, true)

	if h.Profiles != nil {
		if err := h.Profiles.DeleteProfile(c.Request.Context(), userID); err != nil {
			utils.SafeWarn("remote cleanup for %s failed: %v", utils.MaskID(userID), err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}

// ExportData returns every local record owned by the caller.
func (h *UserHandler) ExportData(c *gin.Context) {
	userID := middleware.GetUserID(c)

	user, err := h.Ledger.GetUser(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	transactions, err := h.Ledger.ListTransactions(userID, services.TransactionFilter{})
	if err != nil {
		respondError(c, err)
		return
	}
	goals, err := h.Ledger.ListGoals(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	settings, err := h.Ledger.GetConfig(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"export_info": gin.H{
			"generated_at": time.Now().UTC().Format(time.RFC3339),
			"user_id":      userID,
			"format":       "JSON",
		},
		"user":         user.Public(),
		"transactions": transactions,
		"goals":        goals,
		"settings":     settings,
	})
}
