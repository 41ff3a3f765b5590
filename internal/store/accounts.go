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

// GetClient returns the client or nil.
func (s *sqlStore) GetClient(ctx context.Context, id string) (*models.Client, error) {
	var c models.Client
	var phone, plan, expiration sql.NullString
	var price sql.NullFloat64
	err := s.queryRow(ctx, `SELECT id, tenant_id, name, phone, plan_name, plan_price, expiration_date FROM clients WHERE id = ?`, id).
		Scan(&c.ID, &c.TenantID, &c.Name, &phone, &plan, &price, &expiration)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("Store GetClient not found", "backend", s.backend, "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("Store GetClient failed", "backend", s.backend, "error", err, "id", id)
		return nil, fmt.Errorf("failed to get client %s: %w", id, err)
	}
	c.Phone = phone.String
	c.PlanName = plan.String
	c.ExpirationDate = expiration.String
	if price.Valid {
		p := price.Float64
		c.PlanPrice = &p
	}
	return &c, nil
}

// SaveClient inserts or updates a client by ID.
func (s *sqlStore) SaveClient(ctx context.Context, c *models.Client) error {
	if c.ID == "" {
		c.ID = newID()
	}
	var price interface{}
	if c.PlanPrice != nil {
		price = *c.PlanPrice
	}
	_, err := s.exec(ctx, `INSERT INTO clients (id, tenant_id, name, phone, plan_name, plan_price, expiration_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			plan_name = excluded.plan_name,
			plan_price = excluded.plan_price,
			expiration_date = excluded.expiration_date`,
		c.ID, c.TenantID, c.Name, nilIfEmpty(c.Phone), nilIfEmpty(c.PlanName), price, nilIfEmpty(c.ExpirationDate))
	if err != nil {
		slog.Error("Store SaveClient failed", "backend", s.backend, "error", err, "id", c.ID)
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetTenantProfile returns the profile or nil.
func (s *sqlStore) GetTenantProfile(ctx context.Context, tenantID string) (*models.TenantProfile, error) {
	var p models.TenantProfile
	err := s.queryRow(ctx, `SELECT tenant_id, company_name, display_name, pix_key, has_api_access, notify_on_sent, push_target
		FROM tenant_profiles WHERE tenant_id = ?`, tenantID).
		Scan(&p.TenantID, &p.CompanyName, &p.DisplayName, &p.PixKey, &p.HasAPIAccess, &p.NotifyOnSent, &p.PushTarget)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("Store GetTenantProfile failed", "backend", s.backend, "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to get tenant profile: %w", err)
	}
	return &p, nil
}

// SaveTenantProfile inserts or replaces a tenant profile.
func (s *sqlStore) SaveTenantProfile(ctx context.Context, p models.TenantProfile) error {
	_, err := s.exec(ctx, `INSERT INTO tenant_profiles (tenant_id, company_name, display_name, pix_key, has_api_access, notify_on_sent, push_target)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			company_name = excluded.company_name,
			display_name = excluded.display_name,
			pix_key = excluded.pix_key,
			has_api_access = excluded.has_api_access,
			notify_on_sent = excluded.notify_on_sent,
			push_target = excluded.push_target`,
		p.TenantID, p.CompanyName, p.DisplayName, p.PixKey, p.HasAPIAccess, p.NotifyOnSent, p.PushTarget)
	if err != nil {
		slog.Error("Store SaveTenantProfile failed", "backend", s.backend, "error", err, "tenantID", p.TenantID)
		return fmt.Errorf("failed to save tenant profile: %w", err)
	}
	return nil
}

const instanceColumns = `id, tenant_id, instance_name, provider, status, is_blocked, api_key`

func scanInstance(row rowScanner) (models.MessagingInstance, error) {
	var i models.MessagingInstance
	var provider string
	err := row.Scan(&i.ID, &i.TenantID, &i.InstanceName, &provider, &i.Status, &i.IsBlocked, &i.APIKey)
	i.Provider = models.Provider(provider)
	return i, err
}

// GetMessagingInstance returns the tenant's preferred instance: a connected,
// unblocked one when available, otherwise the most recently updated.
func (s *sqlStore) GetMessagingInstance(ctx context.Context, tenantID string) (*models.MessagingInstance, error) {
	i, err := scanInstance(s.queryRow(ctx, `SELECT `+instanceColumns+` FROM messaging_instances WHERE tenant_id = ?
		ORDER BY CASE WHEN status = ? AND is_blocked = ? THEN 0 ELSE 1 END, updated_at DESC LIMIT 1`,
		tenantID, models.InstanceStatusConnected, false))
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("Store GetMessagingInstance not found", "backend", s.backend, "tenantID", tenantID)
		return nil, nil
	}
	if err != nil {
		slog.Error("Store GetMessagingInstance failed", "backend", s.backend, "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to get messaging instance: %w", err)
	}
	return &i, nil
}

// GetMessagingInstanceByName resolves an instance from its provider-side name.
func (s *sqlStore) GetMessagingInstanceByName(ctx context.Context, instanceName string) (*models.MessagingInstance, error) {
	i, err := scanInstance(s.queryRow(ctx, `SELECT `+instanceColumns+` FROM messaging_instances WHERE instance_name = ?`, instanceName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("Store GetMessagingInstanceByName failed", "backend", s.backend, "error", err, "instance", instanceName)
		return nil, fmt.Errorf("failed to get messaging instance %s: %w", instanceName, err)
	}
	return &i, nil
}

// SaveMessagingInstance inserts or updates an instance by ID.
func (s *sqlStore) SaveMessagingInstance(ctx context.Context, i *models.MessagingInstance) error {
	if i.ID == "" {
		i.ID = newID()
	}
	_, err := s.exec(ctx, `INSERT INTO messaging_instances (`+instanceColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			instance_name = excluded.instance_name,
			provider = excluded.provider,
			status = excluded.status,
			is_blocked = excluded.is_blocked,
			api_key = excluded.api_key,
			updated_at = excluded.updated_at`,
		i.ID, i.TenantID, i.InstanceName, string(i.Provider), i.Status, i.IsBlocked, i.APIKey, time.Now().UTC())
	if err != nil {
		slog.Error("Store SaveMessagingInstance failed", "backend", s.backend, "error", err, "tenantID", i.TenantID)
		return fmt.Errorf("failed to save messaging instance: %w", err)
	}
	return nil
}
