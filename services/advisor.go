package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kr/text"

	"github.com/LovationAdmin/finance-tracker/models"
)

const (
	maxChatHistory   = 20
	advisorMaxTokens = 1024
)

var (
	ErrEmptyConversation = errors.New("conversation is empty")
	ErrAIUpstream        = errors.New("AI provider request failed")
)

const advisorPrompt = `You are a personal finance assistant inside a budgeting app.
Give short, practical answers based on the user's own numbers when they are provided.
Do not invent figures. If data is missing, say so and suggest what to record.
You do not give regulated investment advice.`

// AdvisorService proxies a conversation to the configured chat provider.
type AdvisorService struct {
	provider ChatProvider
	insights *InsightsService
}

func NewAdvisorService(provider ChatProvider, insights *InsightsService) *AdvisorService {
	return &AdvisorService{provider: provider, insights: insights}
}

func (s *AdvisorService) Chat(ctx context.Context, userID string, req models.ChatRequest) (models.ChatResponse, error) {
	history := TrimHistory(req.Messages, maxChatHistory)
	if len(history) == 0 {
		return models.ChatResponse{}, ErrEmptyConversation
	}
	if history[len(history)-1].Role != "user" {
		return models.ChatResponse{}, fmt.Errorf("%w: last message must come from the user", ErrValidation)
	}

	system := advisorPrompt
	if req.IncludeSummary && s.insights != nil {
		snapshot, err := s.FinancialContext(userID)
		if err != nil {
			return models.ChatResponse{}, err
		}
		system += "\n\nUser data:\n" + snapshot
	}

	reply, err := s.provider.Complete(ctx, system, history, advisorMaxTokens)
	if err != nil {
		if errors.Is(err, ErrAIUnavailable) {
			return models.ChatResponse{}, err
		}
		return models.ChatResponse{}, fmt.Errorf("%w: %v", ErrAIUpstream, err)
	}
	return models.ChatResponse{Reply: strings.TrimSpace(reply), Provider: s.provider.Name()}, nil
}

// TrimHistory keeps the last max non-empty messages and drops leading
// assistant turns so the conversation opens with the user.
func TrimHistory(messages []models.ChatMessage, max int) []models.ChatMessage {
	kept := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) > max {
		kept = kept[len(kept)-max:]
	}
	for len(kept) > 0 && kept[0].Role != "user" {
		kept = kept[1:]
	}
	return kept
}

// FinancialContext renders the current month, recurring expenses and goals
// as an indented plain-text block.
func (s *AdvisorService) FinancialContext(userID string) (string, error) {
	period := PeriodOf(s.insights.Now())
	summary, err := s.insights.Summary(userID, period, 5)
	if err != nil {
		return "", err
	}
	recurring, err := s.insights.Recurring(userID)
	if err != nil {
		return "", err
	}
	goals, err := s.insights.Goals(userID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Month %s:\n", summary.Period)
	var month strings.Builder
	fmt.Fprintf(&month, "income: %.2f\nexpenses: %.2f\nbalance: %.2f\nsavings rate: %.1f%%\n",
		summary.Income, summary.Expenses, summary.Balance, summary.SavingsRate)
	for _, c := range summary.TopCategories {
		fmt.Fprintf(&month, "top category %s: %.2f (%.1f%%)\n", c.Category, c.Total, c.Share)
	}
	b.WriteString(text.Indent(month.String(), "  "))

	if len(recurring.Items) > 0 {
		fmt.Fprintf(&b, "Recurring expenses (%.2f per month):\n", recurring.MonthlyTotal)
		var items strings.Builder
		for _, r := range recurring.Items {
			fmt.Fprintf(&items, "%s, %s: %.2f on day %d\n", r.Description, r.Category, r.Amount, r.DayOfMonth)
		}
		b.WriteString(text.Indent(items.String(), "  "))
	}

	if len(goals) > 0 {
		b.WriteString("Goals:\n")
		var list strings.Builder
		for _, g := range goals {
			fmt.Fprintf(&list, "%s: %.2f of %.2f (%.1f%%)\n", g.Name, g.CurrentAmount, g.TargetAmount, g.Progress)
		}
		b.WriteString(text.Indent(list.String(), "  "))
	}
	return b.String(), nil
}
