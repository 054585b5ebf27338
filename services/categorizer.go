package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/store"
	"github.com/LovationAdmin/finance-tracker/utils"
)

// Category sources reported by Suggest.
const (
	SourceRule     = "rule"
	SourceCache    = "cache"
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

type CategorySuggestion struct {
	Category string `json:"category"`
	Source   string `json:"source"`
}

type CategorizerService struct {
	store    *store.Store
	ledger   *LedgerService
	provider ChatProvider
}

// NewCategorizerService builds the service. provider may be nil to skip
// the AI step.
func NewCategorizerService(s *store.Store, ledger *LedgerService, provider ChatProvider) *CategorizerService {
	return &CategorizerService{store: s, ledger: ledger, provider: provider}
}

// --- STATIC DICTIONARY ---
var staticRules = map[string]string{
	// housing
	"rent": "housing", "mortgage": "housing", "landlord": "housing",

	// utilities
	"electric": "utilities", "water bill": "utilities", "gas bill": "utilities", "internet": "utilities",
	"phone bill": "utilities", "comcast": "utilities", "verizon": "utilities",

	// food
	"grocery": "food", "groceries": "food", "supermarket": "food", "restaurant": "food",
	"walmart": "food", "whole foods": "food", "uber eats": "food", "doordash": "food", "cafe": "food",

	// transport
	"uber": "transport", "lyft": "transport", "taxi": "transport", "fuel": "transport",
	"gasoline": "transport", "parking": "transport", "metro": "transport", "train": "transport",

	// subscriptions
	"netflix": "subscriptions", "spotify": "subscriptions", "disney+": "subscriptions",
	"prime video": "subscriptions", "icloud": "subscriptions", "youtube premium": "subscriptions",

	// health
	"pharmacy": "health", "doctor": "health", "dentist": "health", "gym": "health",

	// entertainment
	"cinema": "entertainment", "concert": "entertainment", "steam": "entertainment",

	// shopping
	"amazon": "shopping", "ikea": "shopping",

	// education
	"tuition": "education", "udemy": "education", "coursera": "education",
}

// rulesByLength lists rule keys longest first so "uber eats" wins over "uber".
var rulesByLength = func() []string {
	keys := make([]string, 0, len(staticRules))
	for k := range staticRules {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) == len(keys[j]) {
			return keys[i] < keys[j]
		}
		return len(keys[i]) > len(keys[j])
	})
	return keys
}()

func matchRule(label string) (string, bool) {
	if category, ok := staticRules[label]; ok {
		return category, true
	}
	for _, key := range rulesByLength {
		if strings.Contains(label, key) {
			return staticRules[key], true
		}
	}
	return "", false
}

// Suggest picks an expense category for a free-text description. The
// result is always one of the user's configured expense categories.
func (s *CategorizerService) Suggest(ctx context.Context, userID, description string) (CategorySuggestion, error) {
	label := strings.ToLower(strings.TrimSpace(description))
	if label == "" {
		return CategorySuggestion{}, fmt.Errorf("%w: description is required", ErrValidation)
	}

	cfg, err := s.ledger.GetConfig(userID)
	if err != nil {
		return CategorySuggestion{}, err
	}
	allowed := map[string]bool{}
	for _, c := range cfg.ExpenseCategories {
		allowed[c] = true
	}
	fallback := CategorySuggestion{Category: "other", Source: SourceFallback}
	if !allowed["other"] && len(cfg.ExpenseCategories) > 0 {
		fallback.Category = cfg.ExpenseCategories[len(cfg.ExpenseCategories)-1]
	}

	if category, ok := matchRule(label); ok && allowed[category] {
		return CategorySuggestion{Category: category, Source: SourceRule}, nil
	}

	cached, err := s.store.GetLabelCategory(label)
	switch {
	case err == nil && allowed[cached]:
		return CategorySuggestion{Category: cached, Source: SourceCache}, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return CategorySuggestion{}, fmt.Errorf("read label cache: %w", err)
	}

	if s.provider == nil {
		return fallback, nil
	}

	utils.SafeDebug("[Categorizer] asking %s for '%s'", s.provider.Name(), label)
	category, err := s.predict(ctx, description, cfg.ExpenseCategories)
	if err != nil {
		if !errors.Is(err, ErrAIUnavailable) {
			utils.SafeWarn("[Categorizer] AI error: %v", err)
		}
		return fallback, nil
	}
	if !allowed[category] {
		return fallback, nil
	}

	if err := s.store.PutLabelCategory(label, category); err != nil {
		utils.SafeWarn("[Categorizer] failed to cache: %v", err)
	}
	return CategorySuggestion{Category: category, Source: SourceAI}, nil
}

func (s *CategorizerService) predict(ctx context.Context, description string, categories []string) (string, error) {
	system := "You classify personal finance transactions.\n" +
		"Answer with exactly ONE of these categories and nothing else: " + strings.Join(categories, ", ") + "."
	reply, err := s.provider.Complete(ctx, system, []models.ChatMessage{
		{Role: "user", Content: "Transaction: " + description},
	}, 20)
	if err != nil {
		return "", err
	}
	category := strings.ToLower(strings.TrimSpace(reply))
	category = strings.Trim(category, ".\"'")
	return category, nil
}
