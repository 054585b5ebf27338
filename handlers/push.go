package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-tracker/middleware"
	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/services"
)

type PushHandler struct {
	Push *services.PushService
	Subs services.SubscriptionStore
}

// VAPIDKey returns the application server key browsers subscribe with.
func (h *PushHandler) VAPIDKey(c *gin.Context) {
	if h.Push.PublicKey() == "" {
		respondError(c, services.ErrPushDisabled)
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.Push.PublicKey()})
}

func (h *PushHandler) Subscribe(c *gin.Context) {
	var req models.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.Subs.Save(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *PushHandler) Unsubscribe(c *gin.Context) {
	var req models.UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Subs.Delete(c.Request.Context(), middleware.GetUserID(c), req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unsubscribed"})
}

// Test sends a sample notification to the caller's devices.
func (h *PushHandler) Test(c *gin.Context) {
	result, err := h.Push.SendToUser(c.Request.Context(), middleware.GetUserID(c), models.PushNotification{
		Title: "Notifications enabled",
		Body:  "You will be reminded before recurring payments are due.",
		URL:   "/",
		Tag:   "test",
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
