package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/store"
)

// InsightsService runs the monthly aggregations over one user's ledger.
type InsightsService struct {
	store *store.Store
	now   func() time.Time
}

func NewInsightsService(s *store.Store) *InsightsService {
	return &InsightsService{store: s, now: time.Now}
}

func (s *InsightsService) Now() time.Time { return s.now() }

func (s *InsightsService) load(userID string) ([]models.Transaction, error) {
	txs, err := s.store.ListTransactionsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *InsightsService) Summary(userID string, p Period, topN int) (models.MonthlySummary, error) {
	txs, err := s.load(userID)
	if err != nil {
		return models.MonthlySummary{}, err
	}
	return MonthlySummary(txs, p, topN), nil
}

func (s *InsightsService) Trend(userID string, end Period, months int) ([]models.MonthTrend, error) {
	txs, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	return MonthlyTrend(txs, end, months), nil
}

func (s *InsightsService) Recurring(userID string) (models.RecurringOverview, error) {
	txs, err := s.load(userID)
	if err != nil {
		return models.RecurringOverview{}, err
	}
	items := DetectRecurring(txs)
	return models.RecurringOverview{Items: items, MonthlyTotal: RecurringTotal(items)}, nil
}

func (s *InsightsService) Upcoming(userID string, days int) ([]models.UpcomingExpense, error) {
	overview, err := s.Recurring(userID)
	if err != nil {
		return nil, err
	}
	return UpcomingRecurring(overview.Items, s.now(), days), nil
}

func (s *InsightsService) Goals(userID string) ([]models.GoalView, error) {
	goals, err := s.store.ListGoalsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	views := make([]models.GoalView, 0, len(goals))
	for _, g := range goals {
		views = append(views, ViewGoal(g))
	}
	return views, nil
}

func (s *InsightsService) Tips(userID string, p Period) ([]models.Tip, error) {
	txs, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	return AnalyzeMonth(MonthlySummary(txs, p, 0), DetectRecurring(txs)), nil
}

// ============================================================================
// SAVINGS TIPS
// ============================================================================

// Thresholds, as a share of monthly income in percent.
const (
	housingShareLimit       = 35.0
	subscriptionsShareLimit = 5.0
	leisureShareLimit       = 15.0
	minSavingsRate          = 10.0
)

// AnalyzeMonth applies fixed rules to a month summary. Potential savings
// are per month.
func AnalyzeMonth(summary models.MonthlySummary, recurring []models.RecurringExpense) []models.Tip {
	tips := []models.Tip{}
	if summary.Income <= 0 {
		if summary.Expenses > 0 {
			tips = append(tips, models.Tip{
				Type:    "NO_INCOME",
				Title:   "No income recorded",
				Message: "Expenses were recorded this month without any income. Add your income to get an accurate savings rate.",
			})
		}
		return tips
	}

	shareOfIncome := func(amount float64) float64 { return amount / summary.Income * 100 }

	for _, c := range summary.ByCategory {
		switch c.Category {
		case "housing":
			if shareOfIncome(c.Total) > housingShareLimit {
				target := summary.Income * housingShareLimit / 100
				tips = append(tips, models.Tip{
					Type:             "HOUSING_SHARE",
					Title:            "Housing costs are high",
					Message:          fmt.Sprintf("Housing takes %.0f%% of your income. Around %.0f%% is a common ceiling.", shareOfIncome(c.Total), housingShareLimit),
					Category:         c.Category,
					PotentialSavings: roundMoney(c.Total - target),
				})
			}
		case "entertainment", "shopping":
			if shareOfIncome(c.Total) > leisureShareLimit {
				tips = append(tips, models.Tip{
					Type:             "DISCRETIONARY_SHARE",
					Title:            "Discretionary spending",
					Message:          fmt.Sprintf("%s is %.0f%% of your income this month.", c.Category, shareOfIncome(c.Total)),
					Category:         c.Category,
					PotentialSavings: roundMoney(c.Total * 0.20),
				})
			}
		}
	}

	var subscriptions float64
	for _, r := range recurring {
		if r.Category == "subscriptions" {
			subscriptions += r.Amount
		}
	}
	if shareOfIncome(subscriptions) > subscriptionsShareLimit {
		tips = append(tips, models.Tip{
			Type:             "SUBSCRIPTIONS",
			Title:            "Review your subscriptions",
			Message:          fmt.Sprintf("Recurring subscriptions cost %.2f per month. Cancelling unused ones adds up quickly.", subscriptions),
			Category:         "subscriptions",
			PotentialSavings: roundMoney(subscriptions * 0.30),
		})
	}

	if summary.SavingsRate < minSavingsRate {
		tips = append(tips, models.Tip{
			Type:             "LOW_SAVINGS",
			Title:            "Savings rate below 10%",
			Message:          fmt.Sprintf("You kept %.1f%% of your income this month. Setting a goal helps make saving automatic.", summary.SavingsRate),
			PotentialSavings: roundMoney(summary.Income*minSavingsRate/100 - summary.Balance),
		})
	}
	return tips
}

func roundMoney(v float64) float64 {
	if v < 0 {
		return 0
	}
	return money(decimal.NewFromFloat(v))
}
