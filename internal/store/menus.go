package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

const menuColumns = `id, tenant_id, menu_key, title, message_text, parent_menu_key, emoji, section_title, description, sort_order, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMenu(row rowScanner) (models.Menu, error) {
	var m models.Menu
	var parent sql.NullString
	err := row.Scan(&m.ID, &m.TenantID, &m.MenuKey, &m.Title, &m.MessageText, &parent,
		&m.Emoji, &m.SectionTitle, &m.Description, &m.SortOrder, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	m.ParentMenuKey = parent.String
	return m, err
}

// GetMenuByKey returns the menu or nil when it does not exist.
func (s *sqlStore) GetMenuByKey(ctx context.Context, tenantID, menuKey string) (*models.Menu, error) {
	m, err := scanMenu(s.queryRow(ctx, `SELECT `+menuColumns+` FROM menus WHERE tenant_id = ? AND menu_key = ?`, tenantID, menuKey))
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("Store GetMenuByKey not found", "backend", s.backend, "tenantID", tenantID, "menuKey", menuKey)
		return nil, nil
	}
	if err != nil {
		slog.Error("Store GetMenuByKey failed", "backend", s.backend, "error", err, "tenantID", tenantID, "menuKey", menuKey)
		return nil, fmt.Errorf("failed to get menu %s: %w", menuKey, err)
	}
	return &m, nil
}

// ListChildMenus returns the active children of parentKey in sort order.
func (s *sqlStore) ListChildMenus(ctx context.Context, tenantID, parentKey string) ([]models.Menu, error) {
	rows, err := s.query(ctx, `SELECT `+menuColumns+` FROM menus
		WHERE tenant_id = ? AND parent_menu_key = ? AND menu_key <> ? AND is_active = ?
		ORDER BY sort_order, created_at, menu_key`, tenantID, parentKey, parentKey, true)
	if err != nil {
		slog.Error("Store ListChildMenus query failed", "backend", s.backend, "error", err, "tenantID", tenantID, "parent", parentKey)
		return nil, fmt.Errorf("failed to query child menus: %w", err)
	}
	defer rows.Close()

	var menus []models.Menu
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu row: %w", err)
		}
		menus = append(menus, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate menu rows: %w", err)
	}
	slog.Debug("Store ListChildMenus succeeded", "backend", s.backend, "tenantID", tenantID, "parent", parentKey, "count", len(menus))
	return menus, nil
}

// SaveMenu inserts or updates a menu keyed by (tenant, menu_key). The stored
// ID is written back to m.
func (s *sqlStore) SaveMenu(ctx context.Context, m *models.Menu) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.checkParentChain(ctx, m); err != nil {
		return err
	}
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.exec(ctx, `INSERT INTO menus (`+menuColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, menu_key) DO UPDATE SET
			title = excluded.title,
			message_text = excluded.message_text,
			parent_menu_key = excluded.parent_menu_key,
			emoji = excluded.emoji,
			section_title = excluded.section_title,
			description = excluded.description,
			sort_order = excluded.sort_order,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		m.ID, m.TenantID, m.MenuKey, m.Title, m.MessageText, nilIfEmpty(m.ParentMenuKey),
		m.Emoji, m.SectionTitle, m.Description, m.SortOrder, m.IsActive, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		slog.Error("Store SaveMenu failed", "backend", s.backend, "error", err, "tenantID", m.TenantID, "menuKey", m.MenuKey)
		return fmt.Errorf("failed to save menu %s: %w", m.MenuKey, err)
	}
	if err := s.queryRow(ctx, `SELECT id FROM menus WHERE tenant_id = ? AND menu_key = ?`, m.TenantID, m.MenuKey).Scan(&m.ID); err != nil {
		return fmt.Errorf("failed to read back menu id: %w", err)
	}
	slog.Debug("Store SaveMenu succeeded", "backend", s.backend, "tenantID", m.TenantID, "menuKey", m.MenuKey)
	return nil
}

// checkParentChain walks m's ancestors and fails with ErrMenuCycle when the
// chain leads back to m. A missing parent ends the walk.
func (s *sqlStore) checkParentChain(ctx context.Context, m *models.Menu) error {
	seen := map[string]bool{m.MenuKey: true}
	key := m.ParentMenuKey
	for key != "" && key != m.MenuKey {
		if seen[key] {
			break
		}
		seen[key] = true
		parent, err := s.GetMenuByKey(ctx, m.TenantID, key)
		if err != nil {
			return fmt.Errorf("failed to load parent menu %s: %w", key, err)
		}
		if parent == nil || parent.ParentMenuKey == parent.MenuKey {
			return nil
		}
		if parent.ParentMenuKey == m.MenuKey {
			slog.Warn("Store SaveMenu refused, parent cycle", "backend", s.backend, "tenantID", m.TenantID, "menuKey", m.MenuKey, "parent", m.ParentMenuKey)
			return models.ErrMenuCycle
		}
		key = parent.ParentMenuKey
	}
	return nil
}

// DeleteMenu removes a menu and its options. It refuses while child menus exist.
func (s *sqlStore) DeleteMenu(ctx context.Context, tenantID, menuKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var menuID string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM menus WHERE tenant_id = ? AND menu_key = ?`), tenantID, menuKey).Scan(&menuID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrMenuNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up menu %s: %w", menuKey, err)
	}

	var children int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM menus WHERE tenant_id = ? AND parent_menu_key = ? AND menu_key <> ?`),
		tenantID, menuKey, menuKey).Scan(&children)
	if err != nil {
		return fmt.Errorf("failed to count child menus: %w", err)
	}
	if children > 0 {
		slog.Warn("Store DeleteMenu refused, menu has children", "backend", s.backend, "tenantID", tenantID, "menuKey", menuKey, "children", children)
		return models.ErrMenuHasChildren
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM menu_options WHERE tenant_id = ? AND menu_id = ?`), tenantID, menuID); err != nil {
		return fmt.Errorf("failed to delete menu options: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM menus WHERE id = ?`), menuID); err != nil {
		return fmt.Errorf("failed to delete menu: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit menu deletion: %w", err)
	}
	slog.Info("Store DeleteMenu succeeded", "backend", s.backend, "tenantID", tenantID, "menuKey", menuKey)
	return nil
}

// ListActiveOptions returns a menu's active options in stored order.
func (s *sqlStore) ListActiveOptions(ctx context.Context, tenantID, menuID string) ([]models.Option, error) {
	rows, err := s.query(ctx, `SELECT id, menu_id, option_number, option_text, keywords, action_type, target_menu_key, action_response, sort_order, is_active
		FROM menu_options WHERE tenant_id = ? AND menu_id = ? AND is_active = ?
		ORDER BY sort_order, option_number, id`, tenantID, menuID, true)
	if err != nil {
		slog.Error("Store ListActiveOptions query failed", "backend", s.backend, "error", err, "menuID", menuID)
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	var options []models.Option
	for rows.Next() {
		var o models.Option
		var keywords string
		var target, response sql.NullString
		if err := rows.Scan(&o.ID, &o.MenuID, &o.OptionNumber, &o.OptionText, &keywords, &o.ActionType,
			&target, &response, &o.SortOrder, &o.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan option row: %w", err)
		}
		o.Keywords = decodeList(keywords)
		o.TargetMenuKey = target.String
		o.ActionResponse = response.String
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate option rows: %w", err)
	}
	return options, nil
}

// SaveOption inserts or updates an option by ID.
func (s *sqlStore) SaveOption(ctx context.Context, tenantID string, o *models.Option) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = newID()
	}
	_, err := s.exec(ctx, `INSERT INTO menu_options
		(id, tenant_id, menu_id, option_number, option_text, keywords, action_type, target_menu_key, action_response, sort_order, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			option_number = excluded.option_number,
			option_text = excluded.option_text,
			keywords = excluded.keywords,
			action_type = excluded.action_type,
			target_menu_key = excluded.target_menu_key,
			action_response = excluded.action_response,
			sort_order = excluded.sort_order,
			is_active = excluded.is_active`,
		o.ID, tenantID, o.MenuID, o.OptionNumber, o.OptionText, encodeList(o.Keywords), o.ActionType,
		nilIfEmpty(o.TargetMenuKey), nilIfEmpty(o.ActionResponse), o.SortOrder, o.IsActive)
	if err != nil {
		slog.Error("Store SaveOption failed", "backend", s.backend, "error", err, "menuID", o.MenuID)
		return fmt.Errorf("failed to save option: %w", err)
	}
	return nil
}

// ListActiveTriggers returns the tenant's active triggers in precedence order.
func (s *sqlStore) ListActiveTriggers(ctx context.Context, tenantID string) ([]models.Trigger, error) {
	rows, err := s.query(ctx, `SELECT id, tenant_id, trigger_name, keywords, action_type, target_menu_key, response_text, sort_order, is_active
		FROM bot_triggers WHERE tenant_id = ? AND is_active = ?
		ORDER BY sort_order, id`, tenantID, true)
	if err != nil {
		slog.Error("Store ListActiveTriggers query failed", "backend", s.backend, "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []models.Trigger
	for rows.Next() {
		var t models.Trigger
		var keywords string
		var target, response sql.NullString
		if err := rows.Scan(&t.ID, &t.TenantID, &t.TriggerName, &keywords, &t.ActionType, &target, &response, &t.SortOrder, &t.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan trigger row: %w", err)
		}
		t.Keywords = decodeList(keywords)
		t.TargetMenuKey = target.String
		t.ResponseText = response.String
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trigger rows: %w", err)
	}
	return triggers, nil
}

// SaveTrigger inserts or updates a trigger by ID.
func (s *sqlStore) SaveTrigger(ctx context.Context, t *models.Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = newID()
	}
	_, err := s.exec(ctx, `INSERT INTO bot_triggers
		(id, tenant_id, trigger_name, keywords, action_type, target_menu_key, response_text, sort_order, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			trigger_name = excluded.trigger_name,
			keywords = excluded.keywords,
			action_type = excluded.action_type,
			target_menu_key = excluded.target_menu_key,
			response_text = excluded.response_text,
			sort_order = excluded.sort_order,
			is_active = excluded.is_active`,
		t.ID, t.TenantID, t.TriggerName, encodeList(t.Keywords), t.ActionType,
		nilIfEmpty(t.TargetMenuKey), nilIfEmpty(t.ResponseText), t.SortOrder, t.IsActive)
	if err != nil {
		slog.Error("Store SaveTrigger failed", "backend", s.backend, "error", err, "tenantID", t.TenantID)
		return fmt.Errorf("failed to save trigger: %w", err)
	}
	return nil
}

// ListVariables returns the tenant's template variables.
func (s *sqlStore) ListVariables(ctx context.Context, tenantID string) ([]models.Variable, error) {
	rows, err := s.query(ctx, `SELECT id, tenant_id, variable_key, variable_value, description, is_system
		FROM bot_variables WHERE tenant_id = ? ORDER BY variable_key`, tenantID)
	if err != nil {
		slog.Error("Store ListVariables query failed", "backend", s.backend, "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query variables: %w", err)
	}
	defer rows.Close()

	var vars []models.Variable
	for rows.Next() {
		var v models.Variable
		if err := rows.Scan(&v.ID, &v.TenantID, &v.VariableKey, &v.VariableValue, &v.Description, &v.IsSystem); err != nil {
			return nil, fmt.Errorf("failed to scan variable row: %w", err)
		}
		vars = append(vars, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate variable rows: %w", err)
	}
	return vars, nil
}

// SaveVariable inserts or updates a variable keyed by (tenant, variable_key).
func (s *sqlStore) SaveVariable(ctx context.Context, v *models.Variable) error {
	if v.ID == "" {
		v.ID = newID()
	}
	_, err := s.exec(ctx, `INSERT INTO bot_variables (id, tenant_id, variable_key, variable_value, description, is_system)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, variable_key) DO UPDATE SET
			variable_value = excluded.variable_value,
			description = excluded.description,
			is_system = excluded.is_system`,
		v.ID, v.TenantID, v.VariableKey, v.VariableValue, v.Description, v.IsSystem)
	if err != nil {
		slog.Error("Store SaveVariable failed", "backend", s.backend, "error", err, "tenantID", v.TenantID, "key", v.VariableKey)
		return fmt.Errorf("failed to save variable %s: %w", v.VariableKey, err)
	}
	return nil
}

// GetBotSettings returns the tenant's settings or nil when none were saved.
func (s *sqlStore) GetBotSettings(ctx context.Context, tenantID string) (*models.BotSettings, error) {
	var b models.BotSettings
	err := s.queryRow(ctx, `SELECT tenant_id, fallback_message, use_interactive_list, list_button_text, list_footer_text,
		human_handoff_message, goodbye_message, updated_at FROM bot_settings WHERE tenant_id = ?`, tenantID).Scan(
		&b.TenantID, &b.FallbackMessage, &b.UseInteractiveList, &b.ListButtonText, &b.ListFooterText,
		&b.HumanHandoffMessage, &b.GoodbyeMessage, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("Store GetBotSettings failed", "backend", s.backend, "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to get bot settings: %w", err)
	}
	return &b, nil
}

// SaveBotSettings inserts or replaces the tenant's settings.
func (s *sqlStore) SaveBotSettings(ctx context.Context, b models.BotSettings) error {
	_, err := s.exec(ctx, `INSERT INTO bot_settings (tenant_id, fallback_message, use_interactive_list, list_button_text,
		list_footer_text, human_handoff_message, goodbye_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			fallback_message = excluded.fallback_message,
			use_interactive_list = excluded.use_interactive_list,
			list_button_text = excluded.list_button_text,
			list_footer_text = excluded.list_footer_text,
			human_handoff_message = excluded.human_handoff_message,
			goodbye_message = excluded.goodbye_message,
			updated_at = excluded.updated_at`,
		b.TenantID, b.FallbackMessage, b.UseInteractiveList, b.ListButtonText, b.ListFooterText,
		b.HumanHandoffMessage, b.GoodbyeMessage, time.Now().UTC())
	if err != nil {
		slog.Error("Store SaveBotSettings failed", "backend", s.backend, "error", err, "tenantID", b.TenantID)
		return fmt.Errorf("failed to save bot settings: %w", err)
	}
	return nil
}
