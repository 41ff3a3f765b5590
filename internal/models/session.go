package models

import "time"

// SessionState is the free-form label of a conversation session.
type SessionState string

const (
	SessionStateMenu          SessionState = "MENU"
	SessionStateStart         SessionState = "INICIO"
	SessionStateEnded         SessionState = "ENCERRADO"
	SessionStateAwaitingHuman SessionState = "AGUARDANDO_HUMANO"
)

// Session is the conversation state of one user with one tenant.
type Session struct {
	TenantID       string       `json:"tenant_id"`
	UserID         string       `json:"user_id"`
	CurrentMenuKey string       `json:"current_menu_key"`
	Stack          []string     `json:"navigation_stack"`
	Locked         bool         `json:"locked"`
	State          SessionState `json:"state"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// NewSession returns a fresh session positioned at the root menu.
func NewSession(tenantID, userID string) Session {
	return Session{
		TenantID:       tenantID,
		UserID:         userID,
		CurrentMenuKey: RootMenuKey,
		Stack:          []string{},
		State:          SessionStateMenu,
	}
}

// Clone returns a copy that does not share the navigation stack.
func (s Session) Clone() Session {
	c := s
	c.Stack = append([]string{}, s.Stack...)
	return c
}

// Push records key as the previous menu.
func (s *Session) Push(key string) {
	s.Stack = append(s.Stack, key)
}

// Pop removes and returns the most recent previous menu.
func (s *Session) Pop() (string, bool) {
	if len(s.Stack) == 0 {
		return "", false
	}
	last := s.Stack[len(s.Stack)-1]
	s.Stack = s.Stack[:len(s.Stack)-1]
	return last, true
}

// ResetToRoot clears the stack and points the session at the root menu.
func (s *Session) ResetToRoot() {
	s.Stack = []string{}
	s.CurrentMenuKey = RootMenuKey
}

// Expired reports whether the session sat idle longer than ttl. A zero ttl never expires.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || s.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(s.UpdatedAt) > ttl
}
