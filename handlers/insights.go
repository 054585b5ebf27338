package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-tracker/middleware"
	"github.com/LovationAdmin/finance-tracker/services"
)

type InsightsHandler struct {
	Insights *services.InsightsService
}

// period reads ?month=YYYY-MM, defaulting to the current month.
func (h *InsightsHandler) period(c *gin.Context) (services.Period, bool) {
	raw := c.Query("month")
	if raw == "" {
		return services.PeriodOf(h.Insights.Now()), true
	}
	p, err := services.ParsePeriod(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return services.Period{}, false
	}
	return p, true
}

func (h *InsightsHandler) Summary(c *gin.Context) {
	p, ok := h.period(c)
	if !ok {
		return
	}
	top, err := queryInt(c, "top", 5, 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.Insights.Summary(middleware.GetUserID(c), p, top)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *InsightsHandler) Trend(c *gin.Context) {
	p, ok := h.period(c)
	if !ok {
		return
	}
	months, err := queryInt(c, "months", 6, 36)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trend, err := h.Insights.Trend(middleware.GetUserID(c), p, months)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend": trend})
}

func (h *InsightsHandler) Recurring(c *gin.Context) {
	overview, err := h.Insights.Recurring(middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *InsightsHandler) Upcoming(c *gin.Context) {
	days, err := queryInt(c, "days", 7, 31)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, err := h.Insights.Upcoming(middleware.GetUserID(c), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upcoming": items})
}

func (h *InsightsHandler) Tips(c *gin.Context) {
	p, ok := h.period(c)
	if !ok {
		return
	}

	tips, err := h.Insights.Tips(middleware.GetUserID(c), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tips": tips})
}
