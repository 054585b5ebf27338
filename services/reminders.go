package services

import (
	"context"
	"fmt"
	"time"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/utils"
)

// ReminderService pushes a notice for recurring expenses coming due.
type ReminderService struct {
	insights *InsightsService
	push     *PushService
	subs     SubscriptionStore
	leadDays int
	interval time.Duration
}

func NewReminderService(insights *InsightsService, push *PushService, subs SubscriptionStore, leadDays int, interval time.Duration) *ReminderService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if leadDays < 0 {
		leadDays = 0
	}
	return &ReminderService{insights: insights, push: push, subs: subs, leadDays: leadDays, interval: interval}
}

// Run checks once at start and then on every tick until ctx is done.
func (s *ReminderService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if sent, err := s.RunOnce(ctx); err != nil {
			utils.SafeError("[Reminders] run failed: %v", err)
		} else if sent > 0 {
			utils.SafeInfo("[Reminders] %d reminders sent", sent)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce notifies about items due exactly leadDays from now, so a daily
// run sends each reminder once. Returns the number of notifications delivered.
func (s *ReminderService) RunOnce(ctx context.Context) (int, error) {
	users, err := s.subs.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, userID := range users {
		upcoming, err := s.insights.Upcoming(userID, s.leadDays)
		if err != nil {
			utils.SafeWarn("[Reminders] upcoming for %s: %v", utils.MaskID(userID), err)
			continue
		}
		for _, item := range upcoming {
			if item.DaysLeft != s.leadDays {
				continue
			}
			result, err := s.push.SendToUser(ctx, userID, reminderNotification(item))
			if err != nil {
				utils.SafeWarn("[Reminders] push for %s: %v", utils.MaskID(userID), err)
				continue
			}
			sent += result.Sent
		}
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
	}
	return sent, nil
}

func reminderNotification(item models.UpcomingExpense) models.PushNotification {
	when := "today"
	switch item.DaysLeft {
	case 0:
	case 1:
		when = "tomorrow"
	default:
		when = fmt.Sprintf("in %d days", item.DaysLeft)
	}
	name := item.Description
	if name == "" {
		name = item.Category
	}
	return models.PushNotification{
		Title: "Upcoming payment",
		Body:  fmt.Sprintf("%s (%.2f) is due %s.", name, item.Amount, when),
		URL:   "/recurring",
		Tag:   "reminder-" + item.TransactionID + "-" + item.DueDate.Format("2006-01-02"),
	}
}
