package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

var (
	// ErrUnsupportedProvider is returned for instances whose provider has no sender.
	ErrUnsupportedProvider = errors.New("unsupported messaging provider")
	// ErrListUnsupported is returned when a provider cannot send list messages.
	ErrListUnsupported = errors.New("provider does not support list messages")
)

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Sender delivers text through a tenant's messaging instance.
type Sender interface {
	SendText(ctx context.Context, inst *models.MessagingInstance, to, body string) error
}

// ListSender is implemented by senders that can deliver interactive lists.
type ListSender interface {
	SendInteractiveList(ctx context.Context, inst *models.MessagingInstance, to string, list models.InteractiveList) error
}

// CanonicalizePhone strips everything but digits and requires at least 6 of them.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("CanonicalizePhone modified recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
