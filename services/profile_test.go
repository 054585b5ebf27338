package services

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/LovationAdmin/finance-tracker/models"
)

var profileNow = time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newTestProfiles(t *testing.T) (*ProfileService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newMockDB(t)
	svc := NewProfileService(db)
	svc.now = func() time.Time { return profileNow }
	return svc, mock
}

func sqlPattern(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func licenseRow(status string, redeemedBy any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"plan", "duration_days", "status", "redeemed_by"}).
		AddRow("pro", 30, status, redeemedBy)
}

func profileRow(userID, key string, expires any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "display_name", "email", "license_key", "license_plan",
		"license_expires_at", "created_at", "updated_at"}).
		AddRow(userID, "Alice", "alice@example.com", key, "pro", expires, profileNow, profileNow)
}

func checkExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestActivateLicenseRedeemsFreeKey(t *testing.T) {
	t.Parallel()

	svc, mock := newTestProfiles(t)
	expires := profileNow.AddDate(0, 0, 30)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlPattern("FROM licenses WHERE key = $1 FOR UPDATE")).
		WithArgs("KEY-1").
		WillReturnRows(licenseRow("available", nil))
	mock.ExpectExec(sqlPattern("UPDATE licenses SET status = 'redeemed'")).
		WithArgs("alice", profileNow, "KEY-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlPattern("INSERT INTO profiles (user_id, license_key")).
		WithArgs("alice", "KEY-1", "pro", expires, profileNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(sqlPattern("FROM profiles WHERE user_id = $1")).
		WithArgs("alice").
		WillReturnRows(profileRow("alice", "KEY-1", expires))

	p, err := svc.ActivateLicense(context.Background(), "alice", "  key-1 ")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !p.LicenseActive || p.LicensePlan != "pro" || p.LicenseExpiresAt == nil || !p.LicenseExpiresAt.Equal(expires) {
		t.Fatalf("unexpected profile %+v", p)
	}
	checkExpectations(t, mock)
}

func TestActivateLicenseOwnKeyIsNoop(t *testing.T) {
	t.Parallel()

	svc, mock := newTestProfiles(t)
	expires := profileNow.AddDate(0, 0, 10)

	// No UPDATE or INSERT may follow the lookup.
	mock.ExpectBegin()
	mock.ExpectQuery(sqlPattern("FROM licenses WHERE key = $1 FOR UPDATE")).
		WithArgs("KEY-1").
		WillReturnRows(licenseRow("redeemed", "alice"))
	mock.ExpectCommit()
	mock.ExpectQuery(sqlPattern("FROM profiles WHERE user_id = $1")).
		WithArgs("alice").
		WillReturnRows(profileRow("alice", "KEY-1", expires))

	p, err := svc.ActivateLicense(context.Background(), "alice", "KEY-1")
	if err != nil {
		t.Fatalf("re-redeem own key: %v", err)
	}
	if !p.LicenseExpiresAt.Equal(expires) {
		t.Fatalf("expected expiry left at %v, got %v", expires, p.LicenseExpiresAt)
	}
	checkExpectations(t, mock)
}

func TestActivateLicenseRejectsForeignAndUnknownKeys(t *testing.T) {
	t.Parallel()

	t.Run("redeemed by someone else", func(t *testing.T) {
		svc, mock := newTestProfiles(t)
		mock.ExpectBegin()
		mock.ExpectQuery(sqlPattern("FROM licenses WHERE key = $1")).
			WithArgs("KEY-1").
			WillReturnRows(licenseRow("redeemed", "bob"))
		mock.ExpectRollback()

		if _, err := svc.ActivateLicense(context.Background(), "alice", "KEY-1"); !errors.Is(err, ErrLicenseRedeemed) {
			t.Fatalf("expected ErrLicenseRedeemed, got %v", err)
		}
		checkExpectations(t, mock)
	})

	t.Run("unknown key", func(t *testing.T) {
		svc, mock := newTestProfiles(t)
		mock.ExpectBegin()
		mock.ExpectQuery(sqlPattern("FROM licenses WHERE key = $1")).
			WithArgs("NOPE").
			WillReturnRows(sqlmock.NewRows([]string{"plan", "duration_days", "status", "redeemed_by"}))
		mock.ExpectRollback()

		if _, err := svc.ActivateLicense(context.Background(), "alice", "nope"); !errors.Is(err, ErrLicenseInvalid) {
			t.Fatalf("expected ErrLicenseInvalid, got %v", err)
		}
		checkExpectations(t, mock)
	})

	t.Run("blank key", func(t *testing.T) {
		svc, mock := newTestProfiles(t)
		if _, err := svc.ActivateLicense(context.Background(), "alice", "   "); !errors.Is(err, ErrLicenseInvalid) {
			t.Fatalf("expected ErrLicenseInvalid, got %v", err)
		}
		checkExpectations(t, mock)
	})
}

func TestGetProfileDefaultsWhenMissing(t *testing.T) {
	t.Parallel()

	svc, mock := newTestProfiles(t)
	mock.ExpectQuery(sqlPattern("FROM profiles WHERE user_id = $1")).
		WithArgs("alice").
		WillReturnError(sql.ErrNoRows)

	p, err := svc.GetProfile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.UserID != "alice" || p.LicenseActive || p.LicenseExpiresAt != nil {
		t.Fatalf("expected empty profile, got %+v", p)
	}
	checkExpectations(t, mock)
}

func TestUpsertProfileTrimsInput(t *testing.T) {
	t.Parallel()

	svc, mock := newTestProfiles(t)
	mock.ExpectQuery(sqlPattern("ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name")).
		WithArgs("alice", "Alice", "alice@example.com").
		WillReturnRows(profileRow("alice", "", nil))

	p, err := svc.UpsertProfile(context.Background(), "alice", models.UpdateProfileRequest{
		DisplayName: "  Alice ", Email: " alice@example.com",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if p.DisplayName != "Alice" || p.LicenseActive {
		t.Fatalf("unexpected profile %+v", p)
	}
	checkExpectations(t, mock)
}

func TestDeleteProfileRemovesSubscriptionsFirst(t *testing.T) {
	t.Parallel()

	svc, mock := newTestProfiles(t)
	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern("DELETE FROM push_subscriptions WHERE user_id = $1")).
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(sqlPattern("DELETE FROM profiles WHERE user_id = $1")).
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := svc.DeleteProfile(context.Background(), "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	checkExpectations(t, mock)
}

func TestDeleteProfileRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	svc, mock := newTestProfiles(t)
	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern("DELETE FROM push_subscriptions WHERE user_id = $1")).
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(sqlPattern("DELETE FROM profiles WHERE user_id = $1")).
		WithArgs("alice").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if err := svc.DeleteProfile(context.Background(), "alice"); err == nil {
		t.Fatalf("expected the failed delete to surface")
	}
	checkExpectations(t, mock)
}
