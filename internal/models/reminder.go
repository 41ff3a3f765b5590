package models

import (
	"fmt"
	"time"
)

// SendMode selects how a reminder reaches its recipient.
type SendMode string

const (
	// SendModeAuto is picked up by the timer and sent over WhatsApp.
	SendModeAuto SendMode = "auto"
	// SendModeManualAPI is only sent on an explicit force-send request.
	SendModeManualAPI SendMode = "manual_api"
	// SendModePushOnly notifies the tenant's own device instead of the client.
	SendModePushOnly SendMode = "push_only"
)

// IsValidSendMode checks if the given send mode is supported.
func IsValidSendMode(m SendMode) bool {
	switch m {
	case SendModeAuto, SendModeManualAPI, SendModePushOnly:
		return true
	default:
		return false
	}
}

// ReminderStatus is the lifecycle status of a reminder.
type ReminderStatus string

const (
	ReminderStatusScheduled ReminderStatus = "scheduled"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusFailed    ReminderStatus = "failed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// IsTerminal reports whether no further dispatch can happen from this status.
func (s ReminderStatus) IsTerminal() bool {
	return s != ReminderStatusScheduled
}

// Layouts of Reminder.ScheduledDate and Reminder.ScheduledTime.
const (
	ScheduledDateLayout = "2006-01-02"
	ScheduledTimeLayout = "15:04"
)

// Reminder is a scheduled billing message.
type Reminder struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	ClientID      string         `json:"client_id"`
	TemplateID    string         `json:"template_id,omitempty"`
	Message       string         `json:"message,omitempty"`
	EditedMessage string         `json:"edited_message,omitempty"`
	ScheduledDate string         `json:"scheduled_date"`
	ScheduledTime string         `json:"scheduled_time"`
	ReminderType  string         `json:"reminder_type,omitempty"`
	SendMode      SendMode       `json:"send_mode"`
	Status        ReminderStatus `json:"status"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Validate checks the reminder before it is persisted.
func (r *Reminder) Validate() error {
	if r.TenantID == "" {
		return ErrEmptyTenantID
	}
	if r.ClientID == "" {
		return ErrEmptyClientID
	}
	if !IsValidSendMode(r.SendMode) {
		return fmt.Errorf("%w: %q", ErrInvalidSendMode, r.SendMode)
	}
	if _, err := time.Parse(ScheduledDateLayout, r.ScheduledDate); err != nil {
		return ErrInvalidScheduledDate
	}
	if _, err := time.Parse(ScheduledTimeLayout, r.ScheduledTime); err != nil {
		return ErrInvalidScheduledTime
	}
	return nil
}

// ReminderTemplate is a reusable reminder body.
type ReminderTemplate struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Body     string `json:"body"`
}
