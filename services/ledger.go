package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/store"
	"github.com/LovationAdmin/finance-tracker/utils"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTOTPRequired       = errors.New("2FA code required")
	ErrInvalidTOTP        = errors.New("invalid 2FA code")
	ErrTOTPNotSetup       = errors.New("2FA has not been set up")
)

// Change events pushed to connected clients.
const (
	EventTransactionsUpdated = "transactions_updated"
	EventGoalsUpdated        = "goals_updated"
	EventSettingsUpdated     = "settings_updated"
)

// ChangeNotifier receives an event after every successful write.
type ChangeNotifier interface {
	NotifyUser(userID, event string)
}

type noopNotifier struct{}

func (noopNotifier) NotifyUser(string, string) {}

type TransactionFilter struct {
	Type          models.TransactionType
	Category      string
	Period        *Period
	From          *time.Time
	To            *time.Time
	RecurringOnly bool
}

// LedgerService owns the CRUD rules on top of the local store.
type LedgerService struct {
	store    *store.Store
	notifier ChangeNotifier
	cipher   *utils.Cipher
	now      func() time.Time
}

// NewLedgerService builds the service. cipher may be nil, in which case
// TOTP secrets are stored as-is.
func NewLedgerService(s *store.Store, notifier ChangeNotifier, cipher *utils.Cipher) *LedgerService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &LedgerService{store: s, notifier: notifier, cipher: cipher, now: time.Now}
}

// ============================================================================
// ACCOUNTS
// ============================================================================

func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *LedgerService) Register(username, password string) (models.User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return models.User{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if strings.IndexFunc(username, unicode.IsControl) >= 0 {
		return models.User{}, fmt.Errorf("%w: username must not contain control characters", ErrValidation)
	}
	if len(password) < 6 {
		return models.User{}, fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := models.User{Username: username, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *LedgerService) Authenticate(username, password, totpCode string) (models.User, error) {
	user, err := s.store.GetUser(NormalizeUsername(username))
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return models.User{}, ErrInvalidCredentials
	}

	if user.TOTPEnabled {
		if totpCode == "" {
			return models.User{}, ErrTOTPRequired
		}
		secret, err := s.openSecret(user.TOTPSecret)
		if err != nil {
			return models.User{}, err
		}
		if !utils.VerifyTOTP(secret, totpCode) {
			return models.User{}, ErrInvalidTOTP
		}
	}
	return user, nil
}

func (s *LedgerService) GetUser(username string) (models.User, error) {
	user, err := s.store.GetUser(username)
	return user, mapStoreErr(err)
}

func (s *LedgerService) ChangePassword(username, current, next string) error {
	user, err := s.store.GetUser(username)
	if err != nil {
		return mapStoreErr(err)
	}
	if !utils.CheckPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if len(next) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	hash, err := utils.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now().UTC()
	return mapStoreErr(s.store.UpdateUser(user))
}

// SetupTOTP stores a fresh pending secret; it only takes effect after EnableTOTP.
func (s *LedgerService) SetupTOTP(username string) (models.TOTPSetupResponse, error) {
	user, err := s.store.GetUser(username)
	if err != nil {
		return models.TOTPSetupResponse{}, mapStoreErr(err)
	}

	secret, url, err := utils.GenerateTOTPSecret(username)
	if err != nil {
		return models.TOTPSetupResponse{}, fmt.Errorf("generate totp secret: %w", err)
	}
	sealed, err := s.sealSecret(secret)
	if err != nil {
		return models.TOTPSetupResponse{}, err
	}

	user.TOTPSecret = sealed
	user.TOTPEnabled = false
	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(user); err != nil {
		return models.TOTPSetupResponse{}, mapStoreErr(err)
	}
	return models.TOTPSetupResponse{Secret: secret, URL: url}, nil
}

func (s *LedgerService) EnableTOTP(username, code string) error {
	user, err := s.store.GetUser(username)
	if err != nil {
		return mapStoreErr(err)
	}
	if user.TOTPSecret == "" {
		return ErrTOTPNotSetup
	}
	secret, err := s.openSecret(user.TOTPSecret)
	if err != nil {
		return err
	}
	if !utils.VerifyTOTP(secret, code) {
		return ErrInvalidTOTP
	}

	user.TOTPEnabled = true
	user.UpdatedAt = s.now().UTC()
	return mapStoreErr(s.store.UpdateUser(user))
}

func (s *LedgerService) DisableTOTP(username, password string) error {
	user, err := s.store.GetUser(username)
	if err != nil {
		return mapStoreErr(err)
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	user.TOTPEnabled = false
	user.TOTPSecret = ""
	user.UpdatedAt = s.now().UTC()
	return mapStoreErr(s.store.UpdateUser(user))
}

func (s *LedgerService) DeleteAccount(username, password string) error {
	user, err := s.store.GetUser(username)
	if err != nil {
		return mapStoreErr(err)
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	return mapStoreErr(s.store.DeleteUser(username))
}

func (s *LedgerService) sealSecret(secret string) (string, error) {
	if s.cipher == nil {
		return secret, nil
	}
	sealed, err := s.cipher.Encrypt([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("encrypt totp secret: %w", err)
	}
	return sealed, nil
}

func (s *LedgerService) openSecret(stored string) (string, error) {
	if s.cipher == nil {
		return stored, nil
	}
	secret, err := s.cipher.Decrypt(stored)
	if err != nil {
		return "", fmt.Errorf("decrypt totp secret: %w", err)
	}
	return string(secret), nil
}

// ============================================================================
// TRANSACTIONS
// ============================================================================

func (s *LedgerService) CreateTransaction(userID string, req models.TransactionRequest) (models.Transaction, error) {
	now := s.now().UTC()
	t := models.Transaction{ID: uuid.New().String(), UserID: userID, CreatedAt: now}
	if err := s.applyTransaction(&t, req, now); err != nil {
		return models.Transaction{}, err
	}

	if err := s.store.PutTransaction(t); err != nil {
		return models.Transaction{}, saveErr("transaction", err)
	}
	utils.LogLedgerAction("create_transaction", t.ID, userID)
	s.notifier.NotifyUser(userID, EventTransactionsUpdated)
	return t, nil
}

func (s *LedgerService) UpdateTransaction(userID, id string, req models.TransactionRequest) (models.Transaction, error) {
	t, err := s.store.UpdateTransaction(id, func(t *models.Transaction) error {
		if t.UserID != userID {
			return ErrNotFound
		}
		return s.applyTransaction(t, req, s.now().UTC())
	})
	if err != nil {
		return models.Transaction{}, saveErr("transaction", err)
	}
	utils.LogLedgerAction("update_transaction", t.ID, userID)
	s.notifier.NotifyUser(userID, EventTransactionsUpdated)
	return t, nil
}

func (s *LedgerService) DeleteTransaction(userID, id string) error {
	if _, err := s.GetTransaction(userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(id); err != nil {
		return mapStoreErr(err)
	}
	utils.LogLedgerAction("delete_transaction", id, userID)
	s.notifier.NotifyUser(userID, EventTransactionsUpdated)
	return nil
}

// GetTransaction hides other users' records behind ErrNotFound.
func (s *LedgerService) GetTransaction(userID, id string) (models.Transaction, error) {
	t, err := s.store.GetTransaction(id)
	if err != nil {
		return models.Transaction{}, mapStoreErr(err)
	}
	if t.UserID != userID {
		return models.Transaction{}, ErrNotFound
	}
	return t, nil
}

func (s *LedgerService) ListTransactions(userID string, filter TransactionFilter) ([]models.Transaction, error) {
	all, err := s.store.ListTransactionsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	var preds []Predicate
	if filter.Type != "" {
		preds = append(preds, OfType(filter.Type))
	}
	if filter.Category != "" {
		category := normalizeCategory(filter.Category)
		preds = append(preds, func(t models.Transaction) bool { return t.Category == category })
	}
	if filter.Period != nil {
		preds = append(preds, InPeriod(*filter.Period))
	}
	if filter.From != nil {
		from := startOfDay(*filter.From)
		preds = append(preds, func(t models.Transaction) bool { return !t.Date.Before(from) })
	}
	if filter.To != nil {
		to := endOfDay(*filter.To)
		preds = append(preds, func(t models.Transaction) bool { return !t.Date.After(to) })
	}
	if filter.RecurringOnly {
		preds = append(preds, func(t models.Transaction) bool { return t.Recurring })
	}
	return Filter(all, preds...), nil
}

func (s *LedgerService) applyTransaction(t *models.Transaction, req models.TransactionRequest, now time.Time) error {
	kind := models.TransactionType(strings.ToLower(strings.TrimSpace(string(req.Type))))
	if !kind.Valid() {
		return fmt.Errorf("%w: type must be 'income' or 'expense'", ErrValidation)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}

	date := now
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := ParseDateValue(req.Date)
		if err != nil {
			return fmt.Errorf("%w: invalid date", ErrValidation)
		}
		date = parsed
	}

	day := 0
	if req.Recurring {
		day = req.RecurringDay
		if day == 0 {
			day = date.Day()
		}
		if day < 1 || day > 31 {
			return fmt.Errorf("%w: recurring_day must be between 1 and 31", ErrValidation)
		}
	}

	t.Type = kind
	t.Amount = req.Amount
	t.Date = date
	t.Category = normalizeCategory(req.Category)
	t.Description = strings.TrimSpace(req.Description)
	t.Recurring = req.Recurring
	t.RecurringDay = day
	t.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	t.UpdatedAt = now
	return nil
}

// ============================================================================
// GOALS
// ============================================================================

func (s *LedgerService) CreateGoal(userID string, req models.GoalRequest) (models.Goal, error) {
	now := s.now().UTC()
	g := models.Goal{ID: uuid.New().String(), UserID: userID, CreatedAt: now}
	if err := applyGoal(&g, req, now); err != nil {
		return models.Goal{}, err
	}
	if err := s.store.PutGoal(g); err != nil {
		return models.Goal{}, saveErr("goal", err)
	}
	utils.LogLedgerAction("create_goal", g.ID, userID)
	s.notifier.NotifyUser(userID, EventGoalsUpdated)
	return g, nil
}

func (s *LedgerService) UpdateGoal(userID, id string, req models.GoalRequest) (models.Goal, error) {
	g, err := s.store.UpdateGoal(id, func(g *models.Goal) error {
		if g.UserID != userID {
			return ErrNotFound
		}
		return applyGoal(g, req, s.now().UTC())
	})
	if err != nil {
		return models.Goal{}, saveErr("goal", err)
	}
	utils.LogLedgerAction("update_goal", g.ID, userID)
	s.notifier.NotifyUser(userID, EventGoalsUpdated)
	return g, nil
}

// ContributeToGoal adds amount (negative to withdraw) without going below zero.
func (s *LedgerService) ContributeToGoal(userID, id string, amount float64) (models.Goal, error) {
	if amount == 0 {
		return models.Goal{}, fmt.Errorf("%w: amount must not be zero", ErrValidation)
	}
	g, err := s.store.UpdateGoal(id, func(g *models.Goal) error {
		if g.UserID != userID {
			return ErrNotFound
		}
		if g.CurrentAmount+amount < 0 {
			return fmt.Errorf("%w: withdrawal exceeds saved amount", ErrValidation)
		}
		g.CurrentAmount = roundMoney(g.CurrentAmount + amount)
		g.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return models.Goal{}, saveErr("goal", err)
	}
	utils.LogLedgerAction("contribute_goal", g.ID, userID)
	s.notifier.NotifyUser(userID, EventGoalsUpdated)
	return g, nil
}

func (s *LedgerService) DeleteGoal(userID, id string) error {
	if _, err := s.GetGoal(userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteGoal(id); err != nil {
		return mapStoreErr(err)
	}
	utils.LogLedgerAction("delete_goal", id, userID)
	s.notifier.NotifyUser(userID, EventGoalsUpdated)
	return nil
}

func (s *LedgerService) GetGoal(userID, id string) (models.Goal, error) {
	g, err := s.store.GetGoal(id)
	if err != nil {
		return models.Goal{}, mapStoreErr(err)
	}
	if g.UserID != userID {
		return models.Goal{}, ErrNotFound
	}
	return g, nil
}

func (s *LedgerService) ListGoals(userID string) ([]models.Goal, error) {
	goals, err := s.store.ListGoalsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

func applyGoal(g *models.Goal, req models.GoalRequest, now time.Time) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.TargetAmount <= 0 {
		return fmt.Errorf("%w: target_amount must be greater than zero", ErrValidation)
	}
	if req.CurrentAmount < 0 {
		return fmt.Errorf("%w: current_amount must not be negative", ErrValidation)
	}

	var deadline *time.Time
	if strings.TrimSpace(req.Deadline) != "" {
		parsed, err := ParseDateValue(req.Deadline)
		if err != nil {
			return fmt.Errorf("%w: invalid deadline", ErrValidation)
		}
		deadline = &parsed
	}

	g.Name = name
	g.TargetAmount = req.TargetAmount
	g.CurrentAmount = req.CurrentAmount
	g.Deadline = deadline
	g.UpdatedAt = now
	return nil
}

// ============================================================================
// SETTINGS
// ============================================================================

func (s *LedgerService) GetConfig(userID string) (models.AppConfig, error) {
	cfg, err := s.store.GetConfig(userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultAppConfig(userID), nil
	}
	if err != nil {
		return models.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (s *LedgerService) UpdateConfig(userID string, req models.AppConfigRequest) (models.AppConfig, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return models.AppConfig{}, fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}

	defaults := models.DefaultAppConfig(userID)
	cfg := models.AppConfig{
		UserID:            userID,
		Currency:          currency,
		IncomeCategories:  cleanList(req.IncomeCategories, defaults.IncomeCategories, true),
		ExpenseCategories: cleanList(req.ExpenseCategories, defaults.ExpenseCategories, true),
		PaymentMethods:    cleanList(req.PaymentMethods, defaults.PaymentMethods, false),
		UpdatedAt:         s.now().UTC(),
	}
	if err := s.store.PutConfig(cfg); err != nil {
		return models.AppConfig{}, saveErr("config", err)
	}
	s.notifier.NotifyUser(userID, EventSettingsUpdated)
	return cfg, nil
}

// cleanList trims and de-duplicates entries, falling back to def when empty.
func cleanList(values, def []string, categories bool) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if categories {
			v = strings.ToLower(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}

// ============================================================================
// HELPERS
// ============================================================================

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// saveErr passes service errors raised inside a store callback through
// untouched and wraps everything else.
func saveErr(what string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation):
		return err
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	}
	return fmt.Errorf("save %s: %w", what, err)
}

func normalizeCategory(category string) string {
	cat := strings.ToLower(strings.TrimSpace(category))
	if cat == "" {
		return "other"
	}
	return cat
}

// ParseDateValue accepts RFC3339, a bare date (stored at noon UTC) or a
// local timestamp without zone.
func ParseDateValue(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	formats := []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"}
	for _, format := range formats {
		if parsed, err := time.Parse(format, raw); err == nil {
			if format == "2006-01-02" {
				return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 12, 0, 0, 0, time.UTC), nil
			}
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, errors.New("invalid date")
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}
