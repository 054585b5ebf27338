package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/LovationAdmin/finance-tracker/models"
)

// SubscriptionStore persists browser push subscriptions.
type SubscriptionStore interface {
	Save(ctx context.Context, userID string, req models.SubscribeRequest) (models.PushSubscription, error)
	Delete(ctx context.Context, userID, endpoint string) error
	DeleteEndpoint(ctx context.Context, endpoint string) error
	ListByUser(ctx context.Context, userID string) ([]models.PushSubscription, error)
	ListUsers(ctx context.Context) ([]string, error)
}

type PushSubscriptionService struct {
	db *sql.DB
}

func NewPushSubscriptionService(db *sql.DB) *PushSubscriptionService {
	return &PushSubscriptionService{db: db}
}

// Save upserts by endpoint; a browser re-subscribing under another account
// moves the subscription.
func (s *PushSubscriptionService) Save(ctx context.Context, userID string, req models.SubscribeRequest) (models.PushSubscription, error) {
	query := `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
		RETURNING id, user_id, endpoint, p256dh, auth, created_at`

	var sub models.PushSubscription
	err := s.db.QueryRowContext(ctx, query, userID, strings.TrimSpace(req.Endpoint), req.Keys.P256dh, req.Keys.Auth).
		Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt)
	if err != nil {
		return models.PushSubscription{}, fmt.Errorf("save subscription: %w", err)
	}
	return sub, nil
}

func (s *PushSubscriptionService) Delete(ctx context.Context, userID, endpoint string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PushSubscriptionService) DeleteEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (s *PushSubscriptionService) ListByUser(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []models.PushSubscription{}
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListUsers returns every user id holding at least one subscription.
func (s *PushSubscriptionService) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM push_subscriptions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribed users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return users, nil
}
