// Package api provides the HTTP surface of ResellerBot: provider webhooks,
// a generic inbound endpoint and the billing reminder operations.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ResellerBot/internal/messaging"
	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/twiliowhatsapp"
)

// emptyTwiML acknowledges a Twilio webhook without an inline reply.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func (s *Server) evolutionWebhookHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("Server.evolutionWebhookHandler: failed to read body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read request body"))
		return
	}
	in, ok, err := messaging.ParseEvolutionWebhook(body)
	if err != nil {
		slog.Warn("Server.evolutionWebhookHandler: invalid payload", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid webhook payload"))
		return
	}
	if !ok {
		writeJSONResponse(w, http.StatusOK, models.Ignored("Event ignored"))
		return
	}
	s.process(w, r, in)
}

func (s *Server) inboundMessageHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	tenantID := r.PathValue("tenant")
	var req models.InboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.inboundMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := validate.Struct(req); err != nil {
		slog.Warn("Server.inboundMessageHandler: validation failed", "error", err, "tenantID", tenantID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return
	}
	s.process(w, r, models.InboundMessage{
		TenantID:  tenantID,
		From:      req.From,
		Body:      req.Body,
		MessageID: req.MessageID,
		Time:      s.clock().UTC(),
	})
}

func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	in, err := twiliowhatsapp.ParseWebhook(r)
	if err != nil {
		slog.Warn("Server.twilioWebhookHandler: invalid webhook", "error", err, "tenantID", tenantID)
		http.Error(w, "invalid webhook", http.StatusBadRequest)
		return
	}
	in.TenantID = tenantID
	if _, err := s.inbound.ProcessMessage(r.Context(), in); err != nil {
		slog.Error("Server.twilioWebhookHandler: processing failed", "error", err, "tenantID", tenantID)
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, emptyTwiML)
}

// turnResult is the result body of inbound endpoints.
type turnResult struct {
	TenantID  string       `json:"tenant_id"`
	UserID    string       `json:"user_id"`
	Outcome   string       `json:"outcome"`
	Delivered bool         `json:"delivered"`
	Reply     models.Reply `json:"reply"`
}

func (s *Server) process(w http.ResponseWriter, r *http.Request, in models.InboundMessage) {
	report, err := s.inbound.ProcessMessage(r.Context(), in)
	if err != nil {
		slog.Error("Server.process: inbound processing failed", "error", err, "tenantID", in.TenantID, "instance", in.InstanceName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}
	if report.Dropped != "" {
		writeJSONResponse(w, http.StatusOK, models.Ignored(report.Dropped))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(turnResult{
		TenantID:  report.TenantID,
		UserID:    report.UserID,
		Outcome:   string(report.Outcome),
		Delivered: report.Delivered,
		Reply:     report.Reply,
	}))
}
