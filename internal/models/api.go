package models

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusScheduled indicates a reminder was scheduled.
	APIStatusScheduled APIStatus = "scheduled"
	// APIStatusIgnored indicates an inbound event was accepted but not processed.
	APIStatusIgnored APIStatus = "ignored"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithResult(result).Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithMessage(message).WithResult(result).Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusError).WithMessage(message).Build()
}

// Scheduled creates the response returned when a reminder is created.
func Scheduled(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusScheduled).WithResult(result).Build()
}

// Ignored creates the response for inbound events that were dropped.
func Ignored(message string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusIgnored).WithMessage(message).Build()
}

// CreateReminderRequest is the body of POST /tenants/{tenant}/reminders.
type CreateReminderRequest struct {
	ClientID      string   `json:"client_id" validate:"required"`
	TemplateID    string   `json:"template_id,omitempty"`
	Message       string   `json:"message,omitempty" validate:"required_without=TemplateID"`
	EditedMessage string   `json:"edited_message,omitempty"`
	ScheduledDate string   `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	ScheduledTime string   `json:"scheduled_time" validate:"required,datetime=15:04"`
	ReminderType  string   `json:"reminder_type,omitempty"`
	SendMode      SendMode `json:"send_mode" validate:"required,oneof=auto manual_api push_only"`
}

// ToReminder builds a scheduled reminder for tenantID.
func (r *CreateReminderRequest) ToReminder(tenantID string) Reminder {
	return Reminder{
		TenantID:      tenantID,
		ClientID:      r.ClientID,
		TemplateID:    r.TemplateID,
		Message:       r.Message,
		EditedMessage: r.EditedMessage,
		ScheduledDate: r.ScheduledDate,
		ScheduledTime: r.ScheduledTime,
		ReminderType:  r.ReminderType,
		SendMode:      r.SendMode,
		Status:        ReminderStatusScheduled,
	}
}

// InboundMessageRequest is the body of POST /tenants/{tenant}/messages.
type InboundMessageRequest struct {
	From      string `json:"from" validate:"required"`
	Body      string `json:"body"`
	MessageID string `json:"message_id,omitempty"`
}
