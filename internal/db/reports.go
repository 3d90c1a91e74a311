package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/tax-extraction-service/internal/models"
)

// SaveReport inserts a generated report.
func (s *Store) SaveReport(ctx context.Context, r *models.Report) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tax_reports (id, document_id, tenant, provider, content, object_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, r.ID, r.DocumentID, r.Tenant, r.Provider, r.Content, r.ObjectPath).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport loads one report of a tenant.
func (s *Store) GetReport(ctx context.Context, tenant string, id uuid.UUID) (*models.Report, error) {
	var r models.Report
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_id, tenant, provider, content, object_path, created_at
		FROM tax_reports WHERE tenant = $1 AND id = $2
	`, tenant, id).Scan(&r.ID, &r.DocumentID, &r.Tenant, &r.Provider, &r.Content, &r.ObjectPath, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &r, nil
}
