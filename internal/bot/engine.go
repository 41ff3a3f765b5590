// Package bot implements the menu-driven conversation engine: global
// commands, tenant triggers and per-menu options resolved against an
// explicitly passed session.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/ResellerBot/internal/listmsg"
	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/variables"
)

// DefaultHandoffMessage acknowledges a human handoff when the tenant configured none.
const DefaultHandoffMessage = "Certo! Um de nossos atendentes vai falar com você em instantes. 🙋"

// InvalidOptionMessage is shown above the current menu when the tenant has no fallback message.
const InvalidOptionMessage = "Opção inválida. Escolha uma das opções abaixo."

// Repository is the read-only tenant configuration the engine needs.
type Repository interface {
	GetMenuByKey(ctx context.Context, tenantID, menuKey string) (*models.Menu, error)
	ListChildMenus(ctx context.Context, tenantID, parentKey string) ([]models.Menu, error)
	ListActiveOptions(ctx context.Context, tenantID, menuID string) ([]models.Option, error)
	ListActiveTriggers(ctx context.Context, tenantID string) ([]models.Trigger, error)
	ListVariables(ctx context.Context, tenantID string) ([]models.Variable, error)
	GetBotSettings(ctx context.Context, tenantID string) (*models.BotSettings, error)
}

// Outcome says which rule produced a turn's reply.
type Outcome string

const (
	OutcomeCommand   Outcome = "command"
	OutcomeSelection Outcome = "selection"
	OutcomeTrigger   Outcome = "trigger"
	OutcomeOption    Outcome = "option"
	OutcomeFallback  Outcome = "fallback"
	OutcomeSilent    Outcome = "silent"
)

// Result is the output of one turn.
type Result struct {
	Session models.Session
	Reply   models.Reply
	Outcome Outcome
}

// Engine resolves inbound messages against a tenant's menu tree.
type Engine struct {
	repo Repository
}

// NewEngine creates an engine reading configuration from repo.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// turn holds the state of one Process call.
type turn struct {
	ctx      context.Context
	tenantID string
	session  models.Session
	settings models.BotSettings
	vars     map[string]string
}

// Process runs one inbound message through the engine. The passed session is
// not modified; a nil or ended session starts a new one at the root menu.
// Errors are only returned when the repository fails.
func (e *Engine) Process(ctx context.Context, tenantID string, session *models.Session, userID, message string) (Result, error) {
	t, err := e.begin(ctx, tenantID, session, userID)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("Engine.Process", "tenantID", tenantID, "userID", t.session.UserID, "menu", t.session.CurrentMenuKey, "state", t.session.State)

	commandsEnabled := GlobalCommandsEnabled(t.session.State)

	if commandsEnabled {
		if cmd, ok := navigationCommand(message); ok {
			return e.command(t, cmd)
		}
	}

	if t.session.State == models.SessionStateAwaitingHuman {
		if commandsEnabled {
			if cmd, ok := MatchCommand(message); ok {
				return e.command(t, cmd)
			}
		}
		slog.Debug("Engine.Process awaiting human, staying silent", "tenantID", tenantID, "userID", t.session.UserID)
		return t.result(models.Reply{}, OutcomeSilent), nil
	}

	current, err := e.currentMenu(t)
	if err != nil {
		return Result{}, err
	}
	children, err := e.children(t, current)
	if err != nil {
		return Result{}, err
	}

	// A list row selection carries the child's menu key verbatim.
	if target := childByKey(children, message); target != nil {
		return e.navigate(t, target, OutcomeSelection)
	}

	if commandsEnabled {
		if cmd, ok := MatchCommand(message); ok {
			return e.command(t, cmd)
		}
	}

	if res, ok, err := e.matchTriggers(t, message); err != nil || ok {
		return res, err
	}

	if current != nil {
		if res, ok, err := e.matchOptions(t, current, message); err != nil || ok {
			return res, err
		}
	}

	if target := childByIndex(children, message); target != nil {
		return e.navigate(t, target, OutcomeSelection)
	}

	return e.fallback(t, current)
}

func (e *Engine) begin(ctx context.Context, tenantID string, session *models.Session, userID string) (*turn, error) {
	t := &turn{ctx: ctx, tenantID: tenantID}
	if session == nil || session.State == models.SessionStateEnded {
		t.session = models.NewSession(tenantID, userID)
		if session != nil {
			t.session.CreatedAt = session.CreatedAt
		}
	} else {
		t.session = session.Clone()
		if t.session.CurrentMenuKey == "" {
			t.session.CurrentMenuKey = models.RootMenuKey
		}
	}

	settings, err := e.repo.GetBotSettings(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bot settings: %w", err)
	}
	if settings != nil {
		t.settings = *settings
	}
	vars, err := e.repo.ListVariables(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}
	t.vars = models.VariableMap(vars)
	return t, nil
}

func (t *turn) result(reply models.Reply, outcome Outcome) Result {
	return Result{Session: t.session, Reply: reply, Outcome: outcome}
}

// activeMenu returns the menu or nil when it is missing or inactive.
func (e *Engine) activeMenu(t *turn, key string) (*models.Menu, error) {
	if key == "" {
		return nil, nil
	}
	m, err := e.repo.GetMenuByKey(t.ctx, t.tenantID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu %q: %w", key, err)
	}
	if m == nil || !m.IsActive {
		return nil, nil
	}
	return m, nil
}

// currentMenu resolves the session pointer, moving a dangling pointer to root.
func (e *Engine) currentMenu(t *turn) (*models.Menu, error) {
	m, err := e.activeMenu(t, t.session.CurrentMenuKey)
	if err != nil || m != nil {
		return m, err
	}
	if t.session.CurrentMenuKey != models.RootMenuKey {
		slog.Warn("Engine current menu missing, resetting to root", "tenantID", t.tenantID, "menu", t.session.CurrentMenuKey)
		t.session.ResetToRoot()
	}
	return e.activeMenu(t, models.RootMenuKey)
}

func (e *Engine) children(t *turn, m *models.Menu) ([]models.Menu, error) {
	if m == nil {
		return nil, nil
	}
	children, err := e.repo.ListChildMenus(t.ctx, t.tenantID, m.MenuKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load child menus of %q: %w", m.MenuKey, err)
	}
	active := children[:0:0]
	for _, c := range children {
		if c.IsActive && c.MenuKey != m.MenuKey {
			active = append(active, c)
		}
	}
	return active, nil
}

func (e *Engine) command(t *turn, cmd Command) (Result, error) {
	ApplyCommand(cmd, &t.session)
	slog.Info("Engine global command", "tenantID", t.tenantID, "userID", t.session.UserID, "command", cmd, "menu", t.session.CurrentMenuKey)

	switch cmd {
	case CommandExit:
		return t.result(models.TextReply(variables.Resolve(t.settings.GoodbyeMessage, t.vars)), OutcomeCommand), nil
	case CommandHuman:
		return t.result(models.TextReply(variables.Resolve(t.settings.HumanHandoffMessage, t.vars)), OutcomeCommand), nil
	}

	landing, err := e.activeMenu(t, t.session.CurrentMenuKey)
	if err != nil {
		return Result{}, err
	}
	if landing == nil && t.session.CurrentMenuKey != models.RootMenuKey {
		t.session.ResetToRoot()
		if landing, err = e.activeMenu(t, models.RootMenuKey); err != nil {
			return Result{}, err
		}
	}
	reply, err := e.render(t, landing, "")
	if err != nil {
		return Result{}, err
	}
	return t.result(reply, OutcomeCommand), nil
}

// navigate moves forward to target, remembering the current menu for "voltar".
func (e *Engine) navigate(t *turn, target *models.Menu, outcome Outcome) (Result, error) {
	if target.MenuKey != t.session.CurrentMenuKey {
		t.session.Push(t.session.CurrentMenuKey)
		t.session.CurrentMenuKey = target.MenuKey
	}
	t.session.State = models.SessionStateMenu
	slog.Info("Engine navigate", "tenantID", t.tenantID, "userID", t.session.UserID, "menu", target.MenuKey, "depth", len(t.session.Stack))
	reply, err := e.render(t, target, "")
	if err != nil {
		return Result{}, err
	}
	return t.result(reply, outcome), nil
}

func (e *Engine) handoff(t *turn, response string) models.Reply {
	t.session.State = models.SessionStateAwaitingHuman
	text := response
	if text == "" {
		text = t.settings.HumanHandoffMessage
	}
	if text == "" {
		text = DefaultHandoffMessage
	}
	return models.TextReply(variables.Resolve(text, t.vars))
}

func (e *Engine) matchTriggers(t *turn, message string) (Result, bool, error) {
	triggers, err := e.repo.ListActiveTriggers(t.ctx, t.tenantID)
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to load triggers: %w", err)
	}
	normalized := normalize(message)
	for i := range triggers {
		tr := &triggers[i]
		if !tr.IsActive || !containsAny(normalized, tr.Keywords) {
			continue
		}
		switch tr.ActionType {
		case models.TriggerActionGotoMenu:
			target, err := e.activeMenu(t, tr.TargetMenuKey)
			if err != nil {
				return Result{}, false, err
			}
			if target == nil {
				slog.Warn("Engine trigger target missing", "tenantID", t.tenantID, "trigger", tr.TriggerName, "target", tr.TargetMenuKey)
				continue
			}
			res, err := e.navigate(t, target, OutcomeTrigger)
			return res, true, err
		case models.TriggerActionMessage:
			slog.Info("Engine trigger message", "tenantID", t.tenantID, "trigger", tr.TriggerName)
			return t.result(models.TextReply(variables.Resolve(tr.ResponseText, t.vars)), OutcomeTrigger), true, nil
		case models.TriggerActionHuman:
			slog.Info("Engine trigger handoff", "tenantID", t.tenantID, "trigger", tr.TriggerName)
			return t.result(e.handoff(t, ""), OutcomeTrigger), true, nil
		}
	}
	return Result{}, false, nil
}

func (e *Engine) matchOptions(t *turn, current *models.Menu, message string) (Result, bool, error) {
	options, err := e.repo.ListActiveOptions(t.ctx, t.tenantID, current.ID)
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to load options of %q: %w", current.MenuKey, err)
	}
	normalized := normalize(message)

	var candidates []*models.Option
	if n, ok := leadingNumber(normalized); ok {
		for i := range options {
			if options[i].OptionNumber == n {
				candidates = append(candidates, &options[i])
			}
		}
	}
	if len(candidates) == 0 {
		for i := range options {
			if containsAny(normalized, options[i].Keywords) {
				candidates = append(candidates, &options[i])
			}
		}
	}

	for _, opt := range candidates {
		if !opt.IsActive {
			continue
		}
		switch opt.ActionType {
		case models.OptionActionMenu:
			target, err := e.activeMenu(t, opt.TargetMenuKey)
			if err != nil {
				return Result{}, false, err
			}
			if target == nil {
				slog.Warn("Engine option target missing", "tenantID", t.tenantID, "menu", current.MenuKey, "option", opt.OptionNumber, "target", opt.TargetMenuKey)
				continue
			}
			res, err := e.navigate(t, target, OutcomeOption)
			return res, true, err
		case models.OptionActionMessage:
			return t.result(models.TextReply(variables.Resolve(opt.ActionResponse, t.vars)), OutcomeOption), true, nil
		case models.OptionActionHuman:
			return t.result(e.handoff(t, opt.ActionResponse), OutcomeOption), true, nil
		case models.OptionActionEnd:
			t.session.ResetToRoot()
			t.session.State = models.SessionStateMenu
			return t.result(models.TextReply(variables.Resolve(opt.ActionResponse, t.vars)), OutcomeOption), true, nil
		}
	}
	return Result{}, false, nil
}

func (e *Engine) fallback(t *turn, current *models.Menu) (Result, error) {
	slog.Debug("Engine fallback", "tenantID", t.tenantID, "userID", t.session.UserID, "menu", t.session.CurrentMenuKey)
	if t.settings.FallbackMessage != "" {
		return t.result(models.TextReply(t.settings.FallbackMessage), OutcomeFallback), nil
	}
	reply, err := e.render(t, current, InvalidOptionMessage)
	if err != nil {
		return Result{}, err
	}
	return t.result(reply, OutcomeFallback), nil
}

// render produces the reply for landing on m, as a list when the tenant
// enabled interactive lists and m has children.
func (e *Engine) render(t *turn, m *models.Menu, errText string) (models.Reply, error) {
	if m == nil {
		if errText != "" {
			return models.TextReply("❌ " + errText), nil
		}
		return models.Reply{}, nil
	}
	body := variables.Resolve(m.MessageText, t.vars)
	cfg := listmsg.MenuConfig{
		Title:      variables.Resolve(m.Title, t.vars),
		Body:       body,
		ButtonText: t.settings.ListButtonText,
		FooterText: variables.Resolve(t.settings.ListFooterText, t.vars),
		IsRoot:     m.IsRoot(),
		Error:      errText,
	}

	if t.settings.UseInteractiveList {
		children, err := e.children(t, m)
		if err != nil {
			return models.Reply{}, err
		}
		if len(children) > 0 {
			return models.ListReply(listmsg.RenderMenu(children, cfg), listmsg.CreateTextResponse(children, cfg)), nil
		}
	}
	if errText != "" {
		return models.TextReply(strings.TrimSpace("❌ " + errText + "\n\n" + body)), nil
	}
	return models.TextReply(body), nil
}

func childByKey(children []models.Menu, message string) *models.Menu {
	key := strings.TrimSpace(message)
	for i := range children {
		if children[i].MenuKey == key {
			return &children[i]
		}
	}
	return nil
}

func childByIndex(children []models.Menu, message string) *models.Menu {
	n, err := strconv.Atoi(strings.TrimSpace(message))
	if err != nil || n < 1 || n > len(children) {
		return nil
	}
	return &children[n-1]
}

// leadingNumber parses the run of digits at the start of s.
func leadingNumber(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func containsAny(normalized string, keywords []string) bool {
	if normalized == "" {
		return false
	}
	for _, kw := range keywords {
		kw = normalize(kw)
		if kw != "" && strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}
