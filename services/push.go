package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/utils"
)

var ErrPushDisabled = errors.New("push notifications are not configured")

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
}

// PushService sends Web Push messages to every subscription of a user.
type PushService struct {
	subs       SubscriptionStore
	cfg        PushConfig
	httpClient *http.Client
}

func NewPushService(subs SubscriptionStore, cfg PushConfig) *PushService {
	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	return &PushService{
		subs:       subs,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *PushService) PublicKey() string { return s.cfg.VAPIDPublicKey }

func (s *PushService) enabled() bool {
	return s.subs != nil && s.cfg.VAPIDPublicKey != "" && s.cfg.VAPIDPrivateKey != ""
}

// SendToUser delivers n to all of userID's subscriptions. Subscriptions the
// push service reports as gone (404/410) are deleted.
func (s *PushService) SendToUser(ctx context.Context, userID string, n models.PushNotification) (models.PushResult, error) {
	var result models.PushResult
	if !s.enabled() {
		return result, ErrPushDisabled
	}

	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return result, err
	}
	if len(subs) == 0 {
		return result, nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return result, fmt.Errorf("encode notification: %w", err)
	}

	for _, sub := range subs {
		status, err := s.send(ctx, payload, sub)
		switch {
		case err != nil:
			result.Failed++
			utils.SafeWarn("[Push] send to %s failed: %v", utils.MaskID(sub.ID), err)
		case status == http.StatusNotFound || status == http.StatusGone:
			if err := s.subs.DeleteEndpoint(ctx, sub.Endpoint); err != nil {
				utils.SafeWarn("[Push] failed to remove expired subscription: %v", err)
			}
			result.Removed++
		case status >= 200 && status < 300:
			result.Sent++
		default:
			result.Failed++
			utils.SafeWarn("[Push] push service returned %d for %s", status, utils.MaskID(sub.ID))
		}
	}

	utils.LogPush(userID, result.Sent, result.Failed, result.Removed)
	return result, nil
}

func (s *PushService) send(ctx context.Context, payload []byte, sub models.PushSubscription) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.cfg.Subscriber,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             s.cfg.TTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
