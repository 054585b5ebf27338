package services

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/store"
	"github.com/LovationAdmin/finance-tracker/utils"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyUser(userID, event string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, userID+":"+event)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "finance.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestLedger(t *testing.T, cipher *utils.Cipher) (*LedgerService, *recordingNotifier) {
	t.Helper()

	notifier := &recordingNotifier{}
	svc := NewLedgerService(newTestStore(t), notifier, cipher)
	svc.now = func() time.Time { return time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC) }
	return svc, notifier
}

func registerUsers(t *testing.T, svc *LedgerService, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := svc.Register(name, "secret1"); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	t.Parallel()
	svc, _ := newTestLedger(t, nil)

	user, err := svc.Register("  Alice ", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Username != "alice" || user.PasswordHash == "secret1" {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := svc.Register("ALICE", "another"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := svc.Register("bob", "123"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short password, got %v", err)
	}

	if _, err := svc.Authenticate("alice", "secret1", ""); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate("alice", "wrong", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate("nobody", "secret1", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestTOTPFlowWithEncryptedSecret(t *testing.T) {
	t.Parallel()

	cipher, err := utils.NewCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	svc, _ := newTestLedger(t, cipher)
	if _, err := svc.Register("alice", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.EnableTOTP("alice", "123456"); !errors.Is(err, ErrTOTPNotSetup) {
		t.Fatalf("expected ErrTOTPNotSetup, got %v", err)
	}

	setup, err := svc.SetupTOTP("alice")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	stored, _ := svc.GetUser("alice")
	if stored.TOTPSecret == setup.Secret || stored.TOTPSecret == "" {
		t.Fatalf("expected secret encrypted at rest")
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := svc.EnableTOTP("alice", code); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if _, err := svc.Authenticate("alice", "secret1", ""); !errors.Is(err, ErrTOTPRequired) {
		t.Fatalf("expected ErrTOTPRequired, got %v", err)
	}
	if _, err := svc.Authenticate("alice", "secret1", "000000"); !errors.Is(err, ErrInvalidTOTP) && code != "000000" {
		t.Fatalf("expected ErrInvalidTOTP, got %v", err)
	}
	if _, err := svc.Authenticate("alice", "secret1", code); err != nil {
		t.Fatalf("authenticate with code: %v", err)
	}

	if err := svc.DisableTOTP("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.DisableTOTP("alice", "secret1"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := svc.Authenticate("alice", "secret1", ""); err != nil {
		t.Fatalf("expected plain login after disable, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	svc, _ := newTestLedger(t, nil)
	_, _ = svc.Register("alice", "secret1")

	if err := svc.ChangePassword("alice", "bad", "secret2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword("alice", "secret1", "secret2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Authenticate("alice", "secret2", ""); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	t.Parallel()
	svc, notifier := newTestLedger(t, nil)
	registerUsers(t, svc, "alice", "bob")

	created, err := svc.CreateTransaction("alice", models.TransactionRequest{
		Type:          models.TransactionTypeExpense,
		Date:          "2026-03-05",
		Amount:        45.5,
		Category:      " Food ",
		Description:   "Groceries",
		PaymentMethod: "debit card",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Category != "food" {
		t.Fatalf("unexpected transaction %+v", created)
	}
	if !created.Date.Equal(time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected bare date stored at noon UTC, got %s", created.Date)
	}

	got, err := svc.GetTransaction("alice", created.ID)
	if err != nil || got.Amount != 45.5 {
		t.Fatalf("read back: %+v (%v)", got, err)
	}
	if _, err := svc.GetTransaction("bob", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other user to get ErrNotFound, got %v", err)
	}

	updated, err := svc.UpdateTransaction("alice", created.ID, models.TransactionRequest{
		Type: models.TransactionTypeExpense, Date: "2026-03-06", Amount: 50, Category: "food",
	})
	if err != nil || updated.Amount != 50 || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("update: %+v (%v)", updated, err)
	}
	if _, err := svc.UpdateTransaction("bob", created.ID, models.TransactionRequest{Type: "expense", Amount: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating someone else's record, got %v", err)
	}

	if err := svc.DeleteTransaction("bob", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting someone else's record, got %v", err)
	}
	if err := svc.DeleteTransaction("alice", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetTransaction("alice", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	events := notifier.Events()
	if len(events) != 3 || events[0] != "alice:"+EventTransactionsUpdated {
		t.Fatalf("expected three change events, got %v", events)
	}
}

func TestTransactionValidation(t *testing.T) {
	t.Parallel()
	svc, notifier := newTestLedger(t, nil)
	registerUsers(t, svc, "alice", "bob")

	cases := []models.TransactionRequest{
		{Type: "transfer", Amount: 10},
		{Type: models.TransactionTypeIncome, Amount: 0},
		{Type: models.TransactionTypeIncome, Amount: -5},
		{Type: models.TransactionTypeExpense, Amount: 5, Date: "05/03/2026"},
		{Type: models.TransactionTypeExpense, Amount: 5, Recurring: true, RecurringDay: 32},
	}
	for _, req := range cases {
		if _, err := svc.CreateTransaction("alice", req); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", req, err)
		}
	}
	if len(notifier.Events()) != 0 {
		t.Fatalf("rejected writes must not notify")
	}

	rec, err := svc.CreateTransaction("alice", models.TransactionRequest{
		Type: models.TransactionTypeExpense, Amount: 9.99, Date: "2026-03-17", Recurring: true,
	})
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	if rec.RecurringDay != 17 || rec.Category != "other" {
		t.Fatalf("expected defaults from date and category, got %+v", rec)
	}
}

func TestListTransactionsFilters(t *testing.T) {
	t.Parallel()
	svc, _ := newTestLedger(t, nil)
	registerUsers(t, svc, "alice", "bob")

	reqs := []models.TransactionRequest{
		{Type: models.TransactionTypeIncome, Amount: 3000, Date: "2026-03-01", Category: "salary"},
		{Type: models.TransactionTypeExpense, Amount: 900, Date: "2026-03-02", Category: "housing", Recurring: true},
		{Type: models.TransactionTypeExpense, Amount: 40, Date: "2026-03-20", Category: "food"},
		{Type: models.TransactionTypeExpense, Amount: 60, Date: "2026-02-20", Category: "food"},
	}
	for _, req := range reqs {
		if _, err := svc.CreateTransaction("alice", req); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	_, _ = svc.CreateTransaction("bob", models.TransactionRequest{Type: models.TransactionTypeExpense, Amount: 1, Date: "2026-03-03"})

	march := Period{Year: 2026, Month: time.March}
	from := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 19, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		filter TransactionFilter
		want   int
	}{
		{"all", TransactionFilter{}, 4},
		{"expenses", TransactionFilter{Type: models.TransactionTypeExpense}, 3},
		{"category", TransactionFilter{Category: "FOOD"}, 2},
		{"month", TransactionFilter{Period: &march}, 3},
		{"range", TransactionFilter{From: &from, To: &to}, 1},
		{"recurring", TransactionFilter{RecurringOnly: true}, 1},
		{"combined", TransactionFilter{Type: models.TransactionTypeExpense, Period: &march, Category: "food"}, 1},
	}
	for _, tc := range cases {
		got, err := svc.ListTransactions("alice", tc.filter)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, len(got))
		}
	}
}

func TestGoalLifecycle(t *testing.T) {
	t.Parallel()
	svc, notifier := newTestLedger(t, nil)
	registerUsers(t, svc, "alice", "bob")

	goal, err := svc.CreateGoal("alice", models.GoalRequest{Name: "Trip", TargetAmount: 1000, Deadline: "2026-12-01"})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if goal.Deadline == nil || goal.Deadline.Month() != time.December {
		t.Fatalf("expected deadline parsed, got %+v", goal.Deadline)
	}

	goal, err = svc.ContributeToGoal("alice", goal.ID, 250)
	if err != nil || goal.CurrentAmount != 250 {
		t.Fatalf("contribute: %+v (%v)", goal, err)
	}
	if _, err := svc.ContributeToGoal("alice", goal.ID, -300); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for overdraw, got %v", err)
	}
	if _, err := svc.ContributeToGoal("bob", goal.ID, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user, got %v", err)
	}

	goal, err = svc.UpdateGoal("alice", goal.ID, models.GoalRequest{Name: "Big trip", TargetAmount: 2000, CurrentAmount: 250})
	if err != nil || goal.Name != "Big trip" || goal.Deadline != nil {
		t.Fatalf("update goal: %+v (%v)", goal, err)
	}
	if _, err := svc.CreateGoal("alice", models.GoalRequest{Name: " ", TargetAmount: 10}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank name, got %v", err)
	}

	goals, _ := svc.ListGoals("alice")
	if len(goals) != 1 {
		t.Fatalf("expected 1 goal, got %d", len(goals))
	}
	if err := svc.DeleteGoal("alice", goal.ID); err != nil {
		t.Fatalf("delete goal: %v", err)
	}
	goals, _ = svc.ListGoals("alice")
	if len(goals) != 0 {
		t.Fatalf("expected no goals after delete")
	}
	if len(notifier.Events()) != 4 {
		t.Fatalf("expected 4 goal events, got %v", notifier.Events())
	}
}

func TestConfigDefaultsAndUpdate(t *testing.T) {
	t.Parallel()
	svc, _ := newTestLedger(t, nil)
	registerUsers(t, svc, "alice", "bob")

	cfg, err := svc.GetConfig("alice")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.Currency != "USD" || len(cfg.ExpenseCategories) == 0 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	saved, err := svc.UpdateConfig("alice", models.AppConfigRequest{
		Currency:          "eur",
		ExpenseCategories: []string{"Food", "food", " rent ", ""},
	})
	if err != nil {
		t.Fatalf("update config: %v", err)
	}
	if saved.Currency != "EUR" {
		t.Fatalf("expected upper-cased currency, got %s", saved.Currency)
	}
	if len(saved.ExpenseCategories) != 2 || saved.ExpenseCategories[1] != "rent" {
		t.Fatalf("expected cleaned categories, got %v", saved.ExpenseCategories)
	}
	if len(saved.IncomeCategories) == 0 || len(saved.PaymentMethods) == 0 {
		t.Fatalf("expected empty lists to fall back to defaults")
	}

	got, _ := svc.GetConfig("alice")
	if got.Currency != "EUR" {
		t.Fatalf("expected saved config to persist, got %+v", got)
	}
	if _, err := svc.UpdateConfig("alice", models.AppConfigRequest{Currency: "EURO"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad currency, got %v", err)
	}
}

func TestDeleteAccountRemovesData(t *testing.T) {
	t.Parallel()
	svc, _ := newTestLedger(t, nil)
	_, _ = svc.Register("alice", "secret1")
	txn, _ := svc.CreateTransaction("alice", models.TransactionRequest{Type: models.TransactionTypeIncome, Amount: 10})

	if err := svc.DeleteAccount("alice", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.DeleteAccount("alice", "secret1"); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if _, err := svc.GetUser("alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected user removed, got %v", err)
	}
	if _, err := svc.GetTransaction("alice", txn.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transactions removed, got %v", err)
	}
}

func TestWritesAfterAccountDeletionAreRejected(t *testing.T) {
	t.Parallel()
	svc, _ := newTestLedger(t, nil)
	registerUsers(t, svc, "alice")
	goal, _ := svc.CreateGoal("alice", models.GoalRequest{Name: "Trip", TargetAmount: 100})

	if err := svc.DeleteAccount("alice", "secret1"); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, err := svc.CreateTransaction("alice", models.TransactionRequest{Type: models.TransactionTypeExpense, Amount: 999}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound creating for a deleted user, got %v", err)
	}
	if _, err := svc.CreateGoal("alice", models.GoalRequest{Name: "Ghost", TargetAmount: 10}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound creating a goal, got %v", err)
	}
	if _, err := svc.UpdateConfig("alice", models.AppConfigRequest{Currency: "EUR"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound saving settings, got %v", err)
	}
	if _, err := svc.ContributeToGoal("alice", goal.ID, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound contributing, got %v", err)
	}

	registerUsers(t, svc, "alice")
	txs, _ := svc.ListTransactions("alice", TransactionFilter{})
	goals, _ := svc.ListGoals("alice")
	if len(txs) != 0 || len(goals) != 0 {
		t.Fatalf("new account inherited data: %d transactions, %d goals", len(txs), len(goals))
	}
}

func TestConcurrentContributionsAreNotLost(t *testing.T) {
	t.Parallel()
	svc, notifier := newTestLedger(t, nil)
	registerUsers(t, svc, "alice")
	goal, err := svc.CreateGoal("alice", models.GoalRequest{Name: "Fund", TargetAmount: 1000})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ContributeToGoal("alice", goal.ID, 10); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("contribute: %v", err)
	}

	got, err := svc.GetGoal("alice", goal.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if got.CurrentAmount != workers*10 {
		t.Fatalf("expected current_amount %d, got %v", workers*10, got.CurrentAmount)
	}
	if n := len(notifier.Events()); n != workers+1 {
		t.Fatalf("expected %d events, got %d", workers+1, n)
	}
}

func TestConcurrentTransactionUpdatesKeepOwnership(t *testing.T) {
	t.Parallel()
	svc, _ := newTestLedger(t, nil)
	registerUsers(t, svc, "alice", "bob")
	txn, err := svc.CreateTransaction("alice", models.TransactionRequest{Type: models.TransactionTypeExpense, Amount: 1, Date: "2026-03-01"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(amount float64) {
			defer wg.Done()
			_, _ = svc.UpdateTransaction("alice", txn.ID, models.TransactionRequest{Type: models.TransactionTypeExpense, Amount: amount, Date: "2026-03-01"})
			_, _ = svc.UpdateTransaction("bob", txn.ID, models.TransactionRequest{Type: models.TransactionTypeIncome, Amount: 5000})
		}(float64(i))
	}
	wg.Wait()

	got, err := svc.GetTransaction("alice", txn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != models.TransactionTypeExpense || got.Amount < 1 || got.Amount > 20 {
		t.Fatalf("foreign update leaked into record: %+v", got)
	}
	if _, err := svc.UpdateTransaction("bob", txn.ID, models.TransactionRequest{Type: models.TransactionTypeIncome, Amount: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign update, got %v", err)
	}
}

func TestRegisterRejectsControlCharacters(t *testing.T) {
	t.Parallel()
	svc, _ := newTestLedger(t, nil)
	registerUsers(t, svc, "a")

	for _, name := range []string{"a\x00b", "tab\tname", "bell\x07"} {
		if _, err := svc.Register(name, "secret1"); !errors.Is(err, ErrValidation) {
			t.Fatalf("register %q: expected ErrValidation, got %v", name, err)
		}
	}
}

func TestParseDateValue(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Time{
		"2026-03-05":                time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC),
		"2026-03-05T08:30:00":       time.Date(2026, time.March, 5, 8, 30, 0, 0, time.UTC),
		"2026-03-05T08:30:00+02:00": time.Date(2026, time.March, 5, 6, 30, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := ParseDateValue(raw)
		if err != nil || !got.Equal(want) {
			t.Fatalf("%s: expected %s, got %s (%v)", raw, want, got, err)
		}
	}
	if _, err := ParseDateValue("yesterday"); err == nil {
		t.Fatalf("expected error for free text")
	}
}
