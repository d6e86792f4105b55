package store

import (
	"context"
	"database/sql"
)

// UpsertTenant inserts or updates a tenant record.
func (s *Store) UpsertTenant(ctx context.Context, t *Tenant) error {
	now := s.nowMilli()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Plan == "" {
		t.Plan = PlanStarter
	}
	if t.AlertThreshold == "" {
		t.AlertThreshold = SeverityMedium
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO tenants (id, name, email, plan, alert_threshold, guidance_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, email = excluded.email, plan = excluded.plan,
			alert_threshold = excluded.alert_threshold,
			guidance_enabled = excluded.guidance_enabled,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, t.Email, t.Plan, t.AlertThreshold, t.GuidanceEnabled,
		t.CreatedAt, t.UpdatedAt)
	return err
}

// GetTenant retrieves a tenant by ID. Returns nil if not found.
func (s *Store) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	var guidance int
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, email, plan, alert_threshold, guidance_enabled, created_at, updated_at
		FROM tenants WHERE id = ?`, id).Scan(
		&t.ID, &t.Name, &t.Email, &t.Plan, &t.AlertThreshold, &guidance,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.GuidanceEnabled = guidance != 0
	return &t, nil
}
