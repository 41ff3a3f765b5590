// Package models defines the core data structures for ResellerBot.
//
// It includes the tenant-scoped menu tree, conversation sessions, billing
// reminders and the lookup records shared by the bot engine, the reminder
// dispatcher and the store.
package models

import (
	"errors"
	"strings"
	"time"
)

// RootMenuKey is the reserved key of every tenant's root menu.
const RootMenuKey = "main"

// Error variables for conditions callers branch on.
var (
	ErrMenuNotFound          = errors.New("menu not found")
	ErrMenuHasChildren       = errors.New("menu still has child menus")
	ErrMenuCycle             = errors.New("menu parent chain forms a cycle")
	ErrReminderNotFound      = errors.New("reminder not found")
	ErrReminderNotScheduled  = errors.New("reminder is not in scheduled status")
	ErrInvalidSendMode       = errors.New("invalid send mode")
	ErrInvalidOptionAction   = errors.New("invalid option action type")
	ErrInvalidTriggerAction  = errors.New("invalid trigger action type")
	ErrInvalidOptionNumber   = errors.New("option number must be positive")
	ErrMissingTargetMenu     = errors.New("target menu key is required for navigation actions")
	ErrEmptyMenuKey          = errors.New("menu key cannot be empty")
	ErrEmptyTenantID         = errors.New("tenant id cannot be empty")
	ErrEmptyClientID         = errors.New("client id cannot be empty")
	ErrInvalidScheduledDate  = errors.New("scheduled date must use YYYY-MM-DD")
	ErrInvalidScheduledTime  = errors.New("scheduled time must use HH:MM")
	ErrTriggerWithoutKeyword = errors.New("trigger needs at least one keyword")
)

// Menu is a node of a tenant's menu tree.
type Menu struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	MenuKey       string    `json:"menu_key"`
	Title         string    `json:"title"`
	MessageText   string    `json:"message_text"`
	ParentMenuKey string    `json:"parent_menu_key,omitempty"` // empty or equal to MenuKey means root
	Emoji         string    `json:"emoji,omitempty"`
	SectionTitle  string    `json:"section_title,omitempty"`
	Description   string    `json:"description,omitempty"`
	SortOrder     int       `json:"sort_order"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsRoot reports whether the menu is the reserved root key, has no parent
// or names itself as parent.
func (m *Menu) IsRoot() bool {
	return m.MenuKey == RootMenuKey || m.ParentMenuKey == "" || m.ParentMenuKey == m.MenuKey
}

// Validate checks the menu's required fields.
func (m *Menu) Validate() error {
	if m.TenantID == "" {
		return ErrEmptyTenantID
	}
	if strings.TrimSpace(m.MenuKey) == "" {
		return ErrEmptyMenuKey
	}
	return nil
}

// OptionActionType selects what a menu option does when matched.
type OptionActionType string

const (
	// OptionActionMenu navigates to TargetMenuKey.
	OptionActionMenu OptionActionType = "menu"
	// OptionActionMessage replies with ActionResponse.
	OptionActionMessage OptionActionType = "message"
	// OptionActionHuman replies with ActionResponse and hands off to an operator.
	OptionActionHuman OptionActionType = "human"
	// OptionActionEnd replies with ActionResponse and returns to the root menu.
	OptionActionEnd OptionActionType = "end"
)

// IsValidOptionAction checks if the given option action type is supported.
func IsValidOptionAction(a OptionActionType) bool {
	switch a {
	case OptionActionMenu, OptionActionMessage, OptionActionHuman, OptionActionEnd:
		return true
	default:
		return false
	}
}

// Option is an edge or leaf owned by one menu.
type Option struct {
	ID             string           `json:"id"`
	MenuID         string           `json:"menu_id"`
	OptionNumber   int              `json:"option_number"`
	OptionText     string           `json:"option_text"`
	Keywords       []string         `json:"keywords,omitempty"`
	ActionType     OptionActionType `json:"action_type"`
	TargetMenuKey  string           `json:"target_menu_key,omitempty"`
	ActionResponse string           `json:"action_response,omitempty"`
	SortOrder      int              `json:"sort_order"`
	IsActive       bool             `json:"is_active"`
}

// Validate checks the option's action fields. Duplicate option numbers are allowed.
func (o *Option) Validate() error {
	if o.OptionNumber <= 0 {
		return ErrInvalidOptionNumber
	}
	if !IsValidOptionAction(o.ActionType) {
		return ErrInvalidOptionAction
	}
	if o.ActionType == OptionActionMenu && o.TargetMenuKey == "" {
		return ErrMissingTargetMenu
	}
	return nil
}

// TriggerActionType selects what a trigger does when matched.
type TriggerActionType string

const (
	TriggerActionGotoMenu TriggerActionType = "goto_menu"
	TriggerActionMessage  TriggerActionType = "message"
	TriggerActionHuman    TriggerActionType = "human"
)

// IsValidTriggerAction checks if the given trigger action type is supported.
func IsValidTriggerAction(a TriggerActionType) bool {
	switch a {
	case TriggerActionGotoMenu, TriggerActionMessage, TriggerActionHuman:
		return true
	default:
		return false
	}
}

// Trigger is a tenant-wide keyword rule checked before menu options.
type Trigger struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	TriggerName   string            `json:"trigger_name"`
	Keywords      []string          `json:"keywords"`
	ActionType    TriggerActionType `json:"action_type"`
	TargetMenuKey string            `json:"target_menu_key,omitempty"`
	ResponseText  string            `json:"response_text,omitempty"`
	SortOrder     int               `json:"sort_order"`
	IsActive      bool              `json:"is_active"`
}

// Validate checks the trigger's action fields.
func (t *Trigger) Validate() error {
	if len(t.Keywords) == 0 {
		return ErrTriggerWithoutKeyword
	}
	if !IsValidTriggerAction(t.ActionType) {
		return ErrInvalidTriggerAction
	}
	if t.ActionType == TriggerActionGotoMenu && t.TargetMenuKey == "" {
		return ErrMissingTargetMenu
	}
	return nil
}

// Variable is a tenant template variable.
type Variable struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	VariableKey   string `json:"variable_key"`
	VariableValue string `json:"variable_value"`
	Description   string `json:"description,omitempty"`
	IsSystem      bool   `json:"is_system"`
}

// VariableMap flattens a variable list into a lookup table. Later keys win.
func VariableMap(vars []Variable) map[string]string {
	m := make(map[string]string, len(vars))
	for _, v := range vars {
		m[v.VariableKey] = v.VariableValue
	}
	return m
}

// BotSettings holds per-tenant bot behaviour.
type BotSettings struct {
	TenantID            string    `json:"tenant_id"`
	FallbackMessage     string    `json:"fallback_message"`
	UseInteractiveList  bool      `json:"use_interactive_list"`
	ListButtonText      string    `json:"list_button_text,omitempty"`
	ListFooterText      string    `json:"list_footer_text,omitempty"`
	HumanHandoffMessage string    `json:"human_handoff_message,omitempty"`
	GoodbyeMessage      string    `json:"goodbye_message,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Client is an end customer of a tenant.
type Client struct {
	ID             string   `json:"id"`
	TenantID       string   `json:"tenant_id"`
	Name           string   `json:"name"`
	Phone          string   `json:"phone,omitempty"`
	PlanName       string   `json:"plan_name,omitempty"`
	PlanPrice      *float64 `json:"plan_price,omitempty"`
	ExpirationDate string   `json:"expiration_date,omitempty"` // YYYY-MM-DD, may be malformed
}

// TenantProfile holds reseller account data used by reminders.
type TenantProfile struct {
	TenantID     string `json:"tenant_id"`
	CompanyName  string `json:"company_name,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	PixKey       string `json:"pix_key,omitempty"`
	HasAPIAccess bool   `json:"has_api_access"`
	NotifyOnSent bool   `json:"notify_on_sent"`
	PushTarget   string `json:"push_target,omitempty"`
}

// Provider names a messaging backend.
type Provider string

const (
	ProviderEvolution Provider = "evolution"
	ProviderWhatsmeow Provider = "whatsmeow"
	ProviderTwilio    Provider = "twilio"
)

// InstanceStatusConnected is the only status from which an instance can send.
const InstanceStatusConnected = "connected"

// MessagingInstance is a tenant's WhatsApp sending channel.
type MessagingInstance struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenant_id"`
	InstanceName string   `json:"instance_name"`
	Provider     Provider `json:"provider"`
	Status       string   `json:"status"`
	IsBlocked    bool     `json:"is_blocked"`
	APIKey       string   `json:"-"`
}

// Connected reports whether the instance can be used for sending.
func (i *MessagingInstance) Connected() bool {
	return i.Status == InstanceStatusConnected && !i.IsBlocked
}

// MessageDirection tells inbound and outbound log entries apart.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageLogEntry is one row of conversation history.
type MessageLogEntry struct {
	ID        int64            `json:"id"`
	TenantID  string           `json:"tenant_id"`
	UserID    string           `json:"user_id"`
	Direction MessageDirection `json:"direction"`
	Body      string           `json:"body"`
	MessageID string           `json:"message_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// InboundMessage is a message received from an end user on some provider.
type InboundMessage struct {
	TenantID     string    `json:"tenant_id"`
	From         string    `json:"from"`
	Body         string    `json:"body"`
	MessageID    string    `json:"message_id,omitempty"`
	InstanceName string    `json:"instance_name,omitempty"`
	Provider     Provider  `json:"provider,omitempty"`
	Time         time.Time `json:"time"`
}
