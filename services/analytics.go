package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/finance-tracker/models"
)

// ============================================================================
// PERIODS
// ============================================================================

// Period is a calendar month in UTC.
type Period struct {
	Year  int
	Month time.Month
}

func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod accepts "2006-01".
func ParsePeriod(raw string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return Period{}, fmt.Errorf("invalid month %q, expected YYYY-MM", raw)
	}
	return PeriodOf(t), nil
}

func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start()) && t.Before(p.End())
}

func (p Period) AddMonths(n int) Period {
	return PeriodOf(p.Start().AddDate(0, n, 0))
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ============================================================================
// FILTER / REDUCE
// ============================================================================

type Predicate func(models.Transaction) bool

func InPeriod(p Period) Predicate {
	return func(t models.Transaction) bool { return p.Contains(t.Date) }
}

func OfType(kind models.TransactionType) Predicate {
	return func(t models.Transaction) bool { return t.Type == kind }
}

// Filter keeps transactions matching every predicate.
func Filter(txs []models.Transaction, preds ...Predicate) []models.Transaction {
	out := make([]models.Transaction, 0, len(txs))
next:
	for _, t := range txs {
		for _, p := range preds {
			if !p(t) {
				continue next
			}
		}
		out = append(out, t)
	}
	return out
}

func Sum(txs []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		total = total.Add(decimal.NewFromFloat(t.Amount))
	}
	return total
}

// GroupTotals sums amounts by key and sorts by total desc, then key.
// Shares are percentages of the grand total.
func GroupTotals(txs []models.Transaction, key func(models.Transaction) string) []models.CategoryTotal {
	sums := map[string]decimal.Decimal{}
	grand := decimal.Zero
	for _, t := range txs {
		k := key(t)
		if k == "" {
			k = "other"
		}
		amount := decimal.NewFromFloat(t.Amount)
		sums[k] = sums[k].Add(amount)
		grand = grand.Add(amount)
	}

	out := make([]models.CategoryTotal, 0, len(sums))
	for k, total := range sums {
		share := 0.0
		if grand.IsPositive() {
			share = total.Div(grand).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
		}
		out = append(out, models.CategoryTotal{Category: k, Total: money(total), Share: share})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total == out[j].Total {
			return out[i].Category < out[j].Category
		}
		return out[i].Total > out[j].Total
	})
	return out
}

// CategoryTotals groups expenses by category.
func CategoryTotals(txs []models.Transaction) []models.CategoryTotal {
	return GroupTotals(Filter(txs, OfType(models.TransactionTypeExpense)), func(t models.Transaction) string {
		return t.Category
	})
}

func PaymentMethodTotals(txs []models.Transaction) []models.CategoryTotal {
	return GroupTotals(Filter(txs, OfType(models.TransactionTypeExpense)), func(t models.Transaction) string {
		return t.PaymentMethod
	})
}

func TopN(totals []models.CategoryTotal, n int) []models.CategoryTotal {
	if n <= 0 || n >= len(totals) {
		return append([]models.CategoryTotal(nil), totals...)
	}
	return append([]models.CategoryTotal(nil), totals[:n]...)
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// ============================================================================
// ROLLUPS
// ============================================================================

func MonthlySummary(txs []models.Transaction, p Period, topN int) models.MonthlySummary {
	month := Filter(txs, InPeriod(p))
	income := Sum(Filter(month, OfType(models.TransactionTypeIncome)))
	expenses := Sum(Filter(month, OfType(models.TransactionTypeExpense)))
	balance := income.Sub(expenses)

	savingsRate := 0.0
	if income.IsPositive() {
		savingsRate = balance.Div(income).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
	}

	byCategory := CategoryTotals(month)
	return models.MonthlySummary{
		Period:           p.String(),
		Income:           money(income),
		Expenses:         money(expenses),
		Balance:          money(balance),
		SavingsRate:      savingsRate,
		TransactionCount: len(month),
		ByCategory:       byCategory,
		TopCategories:    TopN(byCategory, topN),
		ByPaymentMethod:  PaymentMethodTotals(month),
	}
}

// MonthlyTrend returns `months` periods ending at end, oldest first.
func MonthlyTrend(txs []models.Transaction, end Period, months int) []models.MonthTrend {
	if months <= 0 {
		return []models.MonthTrend{}
	}
	out := make([]models.MonthTrend, 0, months)
	for i := months - 1; i >= 0; i-- {
		p := end.AddMonths(-i)
		month := Filter(txs, InPeriod(p))
		income := Sum(Filter(month, OfType(models.TransactionTypeIncome)))
		expenses := Sum(Filter(month, OfType(models.TransactionTypeExpense)))
		out = append(out, models.MonthTrend{
			Period:   p.String(),
			Income:   money(income),
			Expenses: money(expenses),
			Balance:  money(income.Sub(expenses)),
		})
	}
	return out
}

// ============================================================================
// RECURRING EXPENSES
// ============================================================================

// DetectRecurring lists expenses flagged as recurring, one entry per
// (description, category). The most recent transaction wins.
func DetectRecurring(txs []models.Transaction) []models.RecurringExpense {
	latest := map[string]models.Transaction{}
	for _, t := range txs {
		if !t.Recurring || t.Type != models.TransactionTypeExpense {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(t.Description)) + "\x00" + t.Category
		if prev, ok := latest[key]; ok && !t.Date.After(prev.Date) {
			continue
		}
		latest[key] = t
	}

	out := make([]models.RecurringExpense, 0, len(latest))
	for _, t := range latest {
		day := t.RecurringDay
		if day < 1 || day > 31 {
			day = t.Date.UTC().Day()
		}
		out = append(out, models.RecurringExpense{
			TransactionID: t.ID,
			Description:   t.Description,
			Category:      t.Category,
			Amount:        t.Amount,
			DayOfMonth:    day,
			PaymentMethod: t.PaymentMethod,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfMonth == out[j].DayOfMonth {
			return out[i].Description < out[j].Description
		}
		return out[i].DayOfMonth < out[j].DayOfMonth
	})
	return out
}

func RecurringTotal(items []models.RecurringExpense) float64 {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(decimal.NewFromFloat(item.Amount))
	}
	return money(total)
}

// NextOccurrence returns the next date on or after now's day that falls on
// day-of-month `day`, clamped to the last day of short months.
func NextOccurrence(day int, now time.Time) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	candidate := clampedDate(now.Year(), now.Month(), day)
	if candidate.Before(today) {
		next := today.AddDate(0, 0, 1-today.Day()).AddDate(0, 1, 0)
		candidate = clampedDate(next.Year(), next.Month(), day)
	}
	return candidate
}

func clampedDate(year int, month time.Month, day int) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// UpcomingRecurring returns items due within `days` days of now (today included).
func UpcomingRecurring(items []models.RecurringExpense, now time.Time, days int) []models.UpcomingExpense {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	out := []models.UpcomingExpense{}
	for _, item := range items {
		due := NextOccurrence(item.DayOfMonth, now)
		left := int(due.Sub(today).Hours() / 24)
		if left > days {
			continue
		}
		out = append(out, models.UpcomingExpense{RecurringExpense: item, DueDate: due, DaysLeft: left})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out
}

// ============================================================================
// GOALS
// ============================================================================

// GoalProgress returns completion in percent, capped at 100.
func GoalProgress(g models.Goal) float64 {
	if g.TargetAmount <= 0 {
		return 0
	}
	pct := decimal.NewFromFloat(g.CurrentAmount).
		Div(decimal.NewFromFloat(g.TargetAmount)).
		Mul(decimal.NewFromInt(100)).
		Round(1).
		InexactFloat64()
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

func ViewGoal(g models.Goal) models.GoalView {
	remaining := decimal.NewFromFloat(g.TargetAmount).Sub(decimal.NewFromFloat(g.CurrentAmount))
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return models.GoalView{Goal: g, Progress: GoalProgress(g), Remaining: money(remaining)}
}
