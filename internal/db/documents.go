package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/tax-extraction-service/internal/models"
)

const documentColumns = `id, tenant, filename, content_type, object_path, doc_context,
	taxpayer_name, tax_year, total_income, total_expenses, total_deductions, taxable_amount,
	tax_id, business_type, outcome, provider, stage, shape, attempts, diagnostics, created_at`

// SaveDocument inserts doc, assigning an ID when it has none, and fills CreatedAt.
func (s *Store) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	diag, err := json.Marshal(doc.Result.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	attempts := doc.Result.Attempts
	if attempts == nil {
		attempts = []string{}
	}
	rec := doc.Result.Record

	query := `
		INSERT INTO tax_documents (
			id, tenant, filename, content_type, object_path, doc_context,
			taxpayer_name, tax_year, total_income, total_expenses, total_deductions, taxable_amount,
			tax_id, business_type, outcome, provider, stage, shape, attempts, diagnostics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at
	`
	err = s.pool.QueryRow(ctx, query,
		doc.ID, doc.Tenant, doc.Filename, doc.ContentType, doc.ObjectPath, doc.Context,
		rec.TaxpayerName, rec.TaxYear, rec.TotalIncome, rec.TotalExpenses, rec.TotalDeductions, rec.TaxableAmount,
		rec.TaxID, rec.BusinessType, string(doc.Result.Outcome), doc.Result.Provider, doc.Result.Stage, doc.Result.Shape,
		attempts, diag,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// GetDocument loads one document of a tenant.
func (s *Store) GetDocument(ctx context.Context, tenant string, id uuid.UUID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM tax_documents WHERE tenant = $1 AND id = $2`
	doc, err := scanDocument(s.pool.QueryRow(ctx, query, tenant, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns a tenant's most recent documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, tenant string, limit, offset int) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM tax_documents
		WHERE tenant = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, tenant, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its reports, returning the object
// paths the caller should remove from storage.
func (s *Store) DeleteDocument(ctx context.Context, tenant string, id uuid.UUID) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var paths []string
	rows, err := tx.Query(ctx,
		`SELECT object_path FROM tax_reports WHERE tenant = $1 AND document_id = $2 AND object_path <> ''`, tenant, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		paths = append(paths, p)
	}
	rows.Close()

	var docPath string
	err = tx.QueryRow(ctx,
		`DELETE FROM tax_documents WHERE tenant = $1 AND id = $2 RETURNING object_path`, tenant, id).Scan(&docPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	if docPath != "" {
		paths = append(paths, docPath)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	return paths, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		doc     models.Document
		rec     = &doc.Result.Record
		outcome string
		diag    []byte
	)
	err := row.Scan(
		&doc.ID, &doc.Tenant, &doc.Filename, &doc.ContentType, &doc.ObjectPath, &doc.Context,
		&rec.TaxpayerName, &rec.TaxYear, &rec.TotalIncome, &rec.TotalExpenses, &rec.TotalDeductions, &rec.TaxableAmount,
		&rec.TaxID, &rec.BusinessType, &outcome, &doc.Result.Provider, &doc.Result.Stage, &doc.Result.Shape,
		&doc.Result.Attempts, &diag, &doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Result.Outcome = models.Outcome(outcome)
	if doc.Result.Diagnostics, err = decodeDiagnostics(diag); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeDiagnostics(raw []byte) (models.Diagnostics, error) {
	var d models.Diagnostics
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("failed to decode diagnostics: %w", err)
	}
	return d, nil
}

// clampLimit bounds page sizes to 1..200, defaulting to 50.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	default:
		return limit
	}
}
