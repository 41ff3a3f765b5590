package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

func (s *Server) createReminderHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	tenantID := r.PathValue("tenant")
	var req models.CreateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createReminderHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := validate.Struct(req); err != nil {
		slog.Warn("Server.createReminderHandler: validation failed", "error", err, "tenantID", tenantID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return
	}

	ctx := r.Context()
	client, err := s.st.GetClient(ctx, req.ClientID)
	if err != nil {
		slog.Error("Server.createReminderHandler: client lookup failed", "error", err, "clientID", req.ClientID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load client"))
		return
	}
	if client == nil || client.TenantID != tenantID {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Client not found"))
		return
	}
	if req.TemplateID != "" {
		tpl, err := s.st.GetReminderTemplate(ctx, req.TemplateID)
		if err != nil {
			slog.Error("Server.createReminderHandler: template lookup failed", "error", err, "templateID", req.TemplateID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load template"))
			return
		}
		if tpl == nil || tpl.TenantID != tenantID {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Template not found"))
			return
		}
	}

	rem := req.ToReminder(tenantID)
	if err := s.st.CreateReminder(ctx, &rem); err != nil {
		slog.Error("Server.createReminderHandler: create failed", "error", err, "tenantID", tenantID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	slog.Info("Server.createReminderHandler: reminder scheduled", "id", rem.ID, "tenantID", tenantID, "date", rem.ScheduledDate, "time", rem.ScheduledTime, "mode", rem.SendMode)
	writeJSONResponse(w, http.StatusCreated, models.Scheduled(rem))
}

func (s *Server) getReminderHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rem, err := s.st.GetReminder(r.Context(), id)
	if err != nil {
		slog.Error("Server.getReminderHandler: lookup failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load reminder"))
		return
	}
	if rem == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Reminder not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rem))
}

func (s *Server) forceSendHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.dispatcher.ForceSend(r.Context(), id)
	switch {
	case errors.Is(err, models.ErrReminderNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Reminder not found"))
		return
	case errors.Is(err, models.ErrReminderNotScheduled):
		writeJSONResponse(w, http.StatusConflict, models.Error("Reminder is not scheduled"))
		return
	case err != nil:
		slog.Error("Server.forceSendHandler: force send failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send reminder"))
		return
	}
	if res.Status == models.ReminderStatusFailed {
		writeJSONResponse(w, http.StatusOK, models.NewAPIResponseBuilder().
			WithStatus(models.APIStatusError).
			WithMessage(res.Error).
			WithResult(res).
			Build())
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Reminder sent", res))
}

func (s *Server) cancelReminderHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.st.CancelReminder(r.Context(), id)
	switch {
	case errors.Is(err, models.ErrReminderNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Reminder not found"))
	case errors.Is(err, models.ErrReminderNotScheduled):
		writeJSONResponse(w, http.StatusConflict, models.Error("Reminder is not scheduled"))
	case err != nil:
		slog.Error("Server.cancelReminderHandler: cancel failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel reminder"))
	default:
		slog.Info("Server.cancelReminderHandler: reminder cancelled", "id", id)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Reminder cancelled", nil))
	}
}

func (s *Server) dispatchHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.dispatcher.DispatchDue(r.Context(), s.clock())
	if err != nil {
		slog.Error("Server.dispatchHandler: dispatch failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Dispatch failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}
