// Package notify hands assignment events to the notification collaborator.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

type Assignment struct {
	ComplaintID     string    `json:"complaint_id"`
	StaffID         string    `json:"staff_id"`
	PreviousStaffID *string   `json:"previous_staff_id,omitempty"`
	Action          string    `json:"action"`
	Reason          string    `json:"reason,omitempty"`
	AssignedAt      time.Time `json:"assigned_at"`
}

type Notifier interface {
	NotifyAssignment(ctx context.Context, a Assignment) error
}

// WebhookNotifier POSTs assignment events as JSON to a delivery service.
type WebhookNotifier struct {
	url    string
	client *resty.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &WebhookNotifier{url: url, client: client}
}

func (w *WebhookNotifier) NotifyAssignment(ctx context.Context, a Assignment) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(a).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("notify assignment: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify assignment: http %s", resp.Status())
	}
	return nil
}

// LogNotifier only records the event; used when no NOTIFY_URL is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l LogNotifier) NotifyAssignment(_ context.Context, a Assignment) error {
	l.Logger.Info().
		Str("complaint_id", a.ComplaintID).
		Str("staff_id", a.StaffID).
		Str("action", a.Action).
		Msg("assignment notification")
	return nil
}
