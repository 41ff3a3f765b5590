package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BTreeMap/ResellerBot/internal/listmsg"
	"github.com/BTreeMap/ResellerBot/internal/models"
)

// DefaultHTTPTimeout bounds Evolution API calls when the caller's context has no deadline.
const DefaultHTTPTimeout = 15 * time.Second

// EvolutionSender sends through an Evolution API server. Each tenant instance
// is addressed by name; the instance API key is used when set, otherwise the
// global key.
type EvolutionSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewEvolutionSender creates a sender for the server at baseURL.
func NewEvolutionSender(baseURL, apiKey string, client *http.Client) *EvolutionSender {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &EvolutionSender{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

type evolutionText struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText implements Sender.
func (e *EvolutionSender) SendText(ctx context.Context, inst *models.MessagingInstance, to, body string) error {
	number, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	return e.post(ctx, inst, "sendText", evolutionText{Number: number, Text: body})
}

// SendInteractiveList implements ListSender.
func (e *EvolutionSender) SendInteractiveList(ctx context.Context, inst *models.MessagingInstance, to string, list models.InteractiveList) error {
	number, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	return e.post(ctx, inst, "sendList", listmsg.ToEvolutionPayload(number, list))
}

func (e *EvolutionSender) post(ctx context.Context, inst *models.MessagingInstance, action string, payload interface{}) error {
	if inst == nil || inst.InstanceName == "" {
		return fmt.Errorf("evolution %s: instance name is required", action)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal evolution %s payload: %w", action, err)
	}
	endpoint := fmt.Sprintf("%s/message/%s/%s", e.baseURL, action, url.PathEscape(inst.InstanceName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build evolution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	key := inst.APIKey
	if key == "" {
		key = e.apiKey
	}
	if key != "" {
		req.Header.Set("apikey", key)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		slog.Error("Evolution request failed", "error", err, "action", action, "instance", inst.InstanceName)
		return fmt.Errorf("evolution %s failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("Evolution request rejected", "status", resp.StatusCode, "action", action, "instance", inst.InstanceName, "body", string(snippet))
		return fmt.Errorf("evolution %s returned status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	io.Copy(io.Discard, resp.Body)
	slog.Debug("Evolution request succeeded", "action", action, "instance", inst.InstanceName, "duration", time.Since(start))
	return nil
}
