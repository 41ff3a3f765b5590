// Package push delivers operator-facing notifications to a tenant's own
// device. It never addresses end clients.
package push

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/BTreeMap/ResellerBot/internal/metrics"
)

// Tags used by the reminder dispatcher.
const (
	TagReminderPush = "billing-reminder"
	TagReminderSent = "billing-reminder-sent"
)

// Notification is one push message. Target identifies the tenant's device
// endpoint; UserID is the tenant the notification belongs to.
type Notification struct {
	UserID string
	Target string
	Title  string
	Body   string
	Tag    string
	Data   map[string]string
}

// Notifier sends push notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier logs notifications and drops them. Used when no push backend
// is configured.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ctx context.Context, n Notification) error {
	slog.Info("push notification dropped, no backend configured", "userID", n.UserID, "tag", n.Tag, "title", n.Title)
	return nil
}

// Publisher is the subset of the SNS client used by SNSNotifier.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes notifications to per-tenant SNS endpoints.
type SNSNotifier struct {
	client Publisher
}

// NewSNSNotifier loads the default AWS configuration for region.
func NewSNSNotifier(ctx context.Context, region string) (*SNSNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNSNotifier{client: sns.NewFromConfig(cfg)}, nil
}

// NewSNSNotifierWithClient wraps an existing publisher.
func NewSNSNotifierWithClient(client Publisher) *SNSNotifier {
	return &SNSNotifier{client: client}
}

// Notify publishes n to n.Target.
func (s *SNSNotifier) Notify(ctx context.Context, n Notification) error {
	if n.Target == "" {
		metrics.PushNotifications.WithLabelValues(n.Tag, metrics.ResultError).Inc()
		return fmt.Errorf("no push target registered for tenant %s", n.UserID)
	}
	attrs := map[string]types.MessageAttributeValue{
		"tag": {DataType: aws.String("String"), StringValue: aws.String(n.Tag)},
	}
	for k, v := range n.Data {
		if v == "" {
			continue
		}
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		TargetArn:         aws.String(n.Target),
		Subject:           aws.String(n.Title),
		Message:           aws.String(n.Body),
		MessageAttributes: attrs,
	})
	metrics.PushNotifications.WithLabelValues(n.Tag, metrics.ResultLabel(err)).Inc()
	if err != nil {
		slog.Error("SNSNotifier publish failed", "error", err, "userID", n.UserID, "tag", n.Tag)
		return fmt.Errorf("failed to publish push notification: %w", err)
	}
	slog.Debug("SNSNotifier published", "userID", n.UserID, "tag", n.Tag, "messageID", aws.ToString(out.MessageId))
	return nil
}
