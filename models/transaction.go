package models

import "time"

type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Transaction is a single income or expense ledger entry.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          TransactionType `json:"type"`
	Date          time.Time       `json:"date"`
	Amount        float64         `json:"amount"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Recurring     bool            `json:"recurring"`
	RecurringDay  int             `json:"recurring_day,omitempty"` // day of month, 1..31
	PaymentMethod string          `json:"payment_method,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type TransactionRequest struct {
	Type          TransactionType `json:"type" binding:"required"`
	Date          string          `json:"date"`
	Amount        float64         `json:"amount" binding:"required"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Recurring     bool            `json:"recurring"`
	RecurringDay  int             `json:"recurring_day"`
	PaymentMethod string          `json:"payment_method"`
}

type CategorizeRequest struct {
	Description string `json:"description" binding:"required"`
}
