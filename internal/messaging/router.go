package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ResellerBot/internal/metrics"
	"github.com/BTreeMap/ResellerBot/internal/models"
)

// DefaultOutboundTimeout bounds one provider call.
const DefaultOutboundTimeout = 15 * time.Second

const (
	kindText = "text"
	kindList = "list"
)

// Router picks the sender registered for an instance's provider. Instances
// without a provider are treated as Evolution instances.
type Router struct {
	mu      sync.RWMutex
	senders map[models.Provider]Sender
	timeout time.Duration
}

// NewRouter creates an empty router. A non-positive timeout selects DefaultOutboundTimeout.
func NewRouter(timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = DefaultOutboundTimeout
	}
	return &Router{senders: make(map[models.Provider]Sender), timeout: timeout}
}

// Register installs s for provider p, replacing any previous sender.
func (r *Router) Register(p models.Provider, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[p] = s
	slog.Debug("Router sender registered", "provider", p)
}

func providerOf(inst *models.MessagingInstance) models.Provider {
	if inst == nil || inst.Provider == "" {
		return models.ProviderEvolution
	}
	return inst.Provider
}

func (r *Router) sender(inst *models.MessagingInstance) (Sender, models.Provider, error) {
	p := providerOf(inst)
	r.mu.RLock()
	s, ok := r.senders[p]
	r.mu.RUnlock()
	if !ok {
		return nil, p, fmt.Errorf("%w: %s", ErrUnsupportedProvider, p)
	}
	return s, p, nil
}

// SendText sends body to the recipient through inst.
func (r *Router) SendText(ctx context.Context, inst *models.MessagingInstance, to, body string) error {
	s, p, err := r.sender(inst)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err = s.SendText(ctx, inst, to, body)
	metrics.OutboundSends.WithLabelValues(string(p), kindText, metrics.ResultLabel(err)).Inc()
	return err
}

// SendInteractiveList sends a list through inst. Providers without list
// support return ErrListUnsupported.
func (r *Router) SendInteractiveList(ctx context.Context, inst *models.MessagingInstance, to string, list models.InteractiveList) error {
	s, p, err := r.sender(inst)
	if err != nil {
		return err
	}
	ls, ok := s.(ListSender)
	if !ok {
		return fmt.Errorf("%w: %s", ErrListUnsupported, p)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err = ls.SendInteractiveList(ctx, inst, to, list)
	metrics.OutboundSends.WithLabelValues(string(p), kindList, metrics.ResultLabel(err)).Inc()
	return err
}

// Deliver sends a bot reply. List replies go out as native lists where the
// provider supports them and as their text rendering otherwise. Empty
// replies send nothing.
func (r *Router) Deliver(ctx context.Context, inst *models.MessagingInstance, to string, reply models.Reply) error {
	if reply.IsEmpty() {
		return nil
	}
	if reply.Type == models.ReplyTypeList && reply.List != nil {
		err := r.SendInteractiveList(ctx, inst, to, *reply.List)
		if !errors.Is(err, ErrListUnsupported) {
			return err
		}
		slog.Debug("Router falling back to text for list reply", "provider", providerOf(inst))
		if reply.Text == "" {
			return err
		}
	}
	return r.SendText(ctx, inst, to, reply.Text)
}
