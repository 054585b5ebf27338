package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/utils"
)

var (
	ErrLicenseInvalid  = errors.New("license key not found")
	ErrLicenseRedeemed = errors.New("license key already redeemed")
)

// ProfileService reads and writes the remote profile and license records.
type ProfileService struct {
	db  *sql.DB
	now func() time.Time
}

func NewProfileService(db *sql.DB) *ProfileService {
	return &ProfileService{db: db, now: time.Now}
}

const profileColumns = `user_id, display_name, email, COALESCE(license_key, ''), COALESCE(license_plan, ''),
	license_expires_at, created_at, updated_at`

func (s *ProfileService) scanProfile(row interface{ Scan(...any) error }) (models.Profile, error) {
	var p models.Profile
	var expires sql.NullTime
	if err := row.Scan(&p.UserID, &p.DisplayName, &p.Email, &p.LicenseKey, &p.LicensePlan,
		&expires, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Profile{}, err
	}
	if expires.Valid {
		t := expires.Time
		p.LicenseExpiresAt = &t
	}
	p.LicenseActive = LicenseActive(p, s.now())
	return p, nil
}

// LicenseActive reports whether the profile carries an unexpired license.
func LicenseActive(p models.Profile, now time.Time) bool {
	return p.LicenseKey != "" && p.LicenseExpiresAt != nil && p.LicenseExpiresAt.After(now)
}

// GetProfile returns an empty profile for users who never saved one.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	p, err := s.scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{UserID: userID}, nil
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func (s *ProfileService) UpsertProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (models.Profile, error) {
	query := `
		INSERT INTO profiles (user_id, display_name, email, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, email = EXCLUDED.email, updated_at = NOW()
		RETURNING ` + profileColumns

	row := s.db.QueryRowContext(ctx, query, userID, strings.TrimSpace(req.DisplayName), strings.TrimSpace(req.Email))
	p, err := s.scanProfile(row)
	if err != nil {
		return models.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

// ActivateLicense redeems key for userID. Redeeming a key the user already
// owns is a no-op.
func (s *ProfileService) ActivateLicense(ctx context.Context, userID, key string) (models.Profile, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return models.Profile{}, ErrLicenseInvalid
	}

	err := utils.WithTransaction(s.db, func(tx *sql.Tx) error {
		var plan, status string
		var durationDays int
		var redeemedBy sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT plan, duration_days, status, redeemed_by FROM licenses WHERE key = $1 FOR UPDATE`, key,
		).Scan(&plan, &durationDays, &status, &redeemedBy)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLicenseInvalid
		}
		if err != nil {
			return err
		}

		if status == "redeemed" {
			if redeemedBy.String == userID {
				return nil
			}
			return ErrLicenseRedeemed
		}

		now := s.now().UTC()
		expires := now.AddDate(0, 0, durationDays)
		if _, err := tx.ExecContext(ctx,
			`UPDATE licenses SET status = 'redeemed', redeemed_by = $1, redeemed_at = $2 WHERE key = $3`,
			userID, now, key,
		); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO profiles (user_id, license_key, license_plan, license_expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (user_id) DO UPDATE
			SET license_key = EXCLUDED.license_key, license_plan = EXCLUDED.license_plan,
			    license_expires_at = EXCLUDED.license_expires_at, updated_at = EXCLUDED.updated_at`,
			userID, key, plan, expires, now,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrLicenseInvalid) || errors.Is(err, ErrLicenseRedeemed) {
			return models.Profile{}, err
		}
		return models.Profile{}, fmt.Errorf("activate license: %w", err)
	}

	utils.SafeInfo("license activated for %s", utils.MaskID(userID))
	return s.GetProfile(ctx, userID)
}

// DeleteProfile removes everything the remote backend holds for userID.
func (s *ProfileService) DeleteProfile(ctx context.Context, userID string) error {
	return utils.WithTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1`, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		return nil
	})
}
