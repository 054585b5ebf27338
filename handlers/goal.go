package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-tracker/middleware"
	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/services"
)

type GoalHandler struct {
	Ledger *services.LedgerService
}

func (h *GoalHandler) List(c *gin.Context) {
	goals, err := h.Ledger.ListGoals(middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]models.GoalView, 0, len(goals))
	for _, g := range goals {
		views = append(views, services.ViewGoal(g))
	}
	c.JSON(http.StatusOK, gin.H{"goals": views})
}

func (h *GoalHandler) Create(c *gin.Context) {
	var req models.GoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g, err := h.Ledger.CreateGoal(middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, services.ViewGoal(g))
}

func (h *GoalHandler) Update(c *gin.Context) {
	var req models.GoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g, err := h.Ledger.UpdateGoal(middleware.GetUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, services.ViewGoal(g))
}

func (h *GoalHandler) Contribute(c *gin.Context) {
	var req models.ContributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g, err := h.Ledger.ContributeToGoal(middleware.GetUserID(c), c.Param("id"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, services.ViewGoal(g))
}

func (h *GoalHandler) Delete(c *gin.Context) {
	if err := h.Ledger.DeleteGoal(middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Goal deleted"})
}
