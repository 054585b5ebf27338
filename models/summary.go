package models

import "time"

type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Share    float64 `json:"share"` // percent of the group total
}

type MonthlySummary struct {
	Period           string          `json:"period"` // YYYY-MM
	Income           float64         `json:"income"`
	Expenses         float64         `json:"expenses"`
	Balance          float64         `json:"balance"`
	SavingsRate      float64         `json:"savings_rate"`
	TransactionCount int             `json:"transaction_count"`
	ByCategory       []CategoryTotal `json:"by_category"`
	TopCategories    []CategoryTotal `json:"top_categories"`
	ByPaymentMethod  []CategoryTotal `json:"by_payment_method"`
}

type MonthTrend struct {
	Period   string  `json:"period"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Balance  float64 `json:"balance"`
}

// RecurringExpense is an expense flagged to repeat monthly on a given day.
type RecurringExpense struct {
	TransactionID string  `json:"transaction_id"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
	DayOfMonth    int     `json:"day_of_month"`
	PaymentMethod string  `json:"payment_method,omitempty"`
}

type UpcomingExpense struct {
	RecurringExpense
	DueDate  time.Time `json:"due_date"`
	DaysLeft int       `json:"days_left"`
}

type RecurringOverview struct {
	Items        []RecurringExpense `json:"items"`
	MonthlyTotal float64            `json:"monthly_total"`
}

// Tip is a rule-based savings hint derived from a month's spending.
type Tip struct {
	Type             string  `json:"type"`
	Title            string  `json:"title"`
	Message          string  `json:"message"`
	Category         string  `json:"category,omitempty"`
	PotentialSavings float64 `json:"potential_savings"`
}
