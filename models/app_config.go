package models

import "time"

// AppConfig holds per-user settings, one record per user id.
type AppConfig struct {
	UserID            string    `json:"user_id"`
	Currency          string    `json:"currency"`
	IncomeCategories  []string  `json:"income_categories"`
	ExpenseCategories []string  `json:"expense_categories"`
	PaymentMethods    []string  `json:"payment_methods"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type AppConfigRequest struct {
	Currency          string   `json:"currency" binding:"required,len=3"`
	IncomeCategories  []string `json:"income_categories"`
	ExpenseCategories []string `json:"expense_categories"`
	PaymentMethods    []string `json:"payment_methods"`
}

// DefaultAppConfig is what a user sees before saving any settings.
func DefaultAppConfig(userID string) AppConfig {
	return AppConfig{
		UserID:            userID,
		Currency:          "USD",
		IncomeCategories:  []string{"salary", "freelance", "investments", "gifts", "other"},
		ExpenseCategories: []string{"housing", "food", "transport", "utilities", "health", "entertainment", "shopping", "education", "subscriptions", "other"},
		PaymentMethods:    []string{"cash", "debit card", "credit card", "bank transfer"},
	}
}
