package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-tracker/middleware"
	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/services"
)

type TransactionHandler struct {
	Ledger      *services.LedgerService
	Categorizer *services.CategorizerService
}

// List supports ?type=, ?category=, ?month=YYYY-MM, ?from=, ?to= and ?recurring=true.
func (h *TransactionHandler) List(c *gin.Context) {
	filter, err := parseTransactionFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txs, err := h.Ledger.ListTransactions(middleware.GetUserID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

func parseTransactionFilter(c *gin.Context) (services.TransactionFilter, error) {
	var filter services.TransactionFilter

	if kind := c.Query("type"); kind != "" {
		filter.Type = models.TransactionType(kind)
		if !filter.Type.Valid() {
			return filter, errBadQuery("type must be 'income' or 'expense'")
		}
	}
	filter.Category = c.Query("category")

	if month := c.Query("month"); month != "" {
		p, err := services.ParsePeriod(month)
		if err != nil {
			return filter, err
		}
		filter.Period = &p
	}
	if from := c.Query("from"); from != "" {
		t, err := services.ParseDateValue(from)
		if err != nil {
			return filter, errBadQuery("invalid from date")
		}
		filter.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := services.ParseDateValue(to)
		if err != nil {
			return filter, errBadQuery("invalid to date")
		}
		filter.To = &t
	}
	if recurring := c.Query("recurring"); recurring != "" {
		v, err := strconv.ParseBool(recurring)
		if err != nil {
			return filter, errBadQuery("recurring must be a boolean")
		}
		filter.RecurringOnly = v
	}
	return filter, nil
}

func (h *TransactionHandler) Get(c *gin.Context) {
	t, err := h.Ledger.GetTransaction(middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TransactionHandler) Create(c *gin.Context) {
	var req models.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.Ledger.CreateTransaction(middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TransactionHandler) Update(c *gin.Context) {
	var req models.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.Ledger.UpdateTransaction(middleware.GetUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TransactionHandler) Delete(c *gin.Context) {
	if err := h.Ledger.DeleteTransaction(middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted"})
}

// Categorize suggests a category for a description without saving anything.
func (h *TransactionHandler) Categorize(c *gin.Context) {
	var req models.CategorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	suggestion, err := h.Categorizer.Suggest(c.Request.Context(), middleware.GetUserID(c), req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestion)
}
