package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lens_gateway/internal/models"
)

// ProviderRepository reads and writes providers in PostgreSQL
type ProviderRepository struct {
	db  *DB
	enc *Encryption
}

var _ ProviderWriter = (*ProviderRepository)(nil)

// NewProviderRepository creates a new provider repository. enc may be nil
// when no credential is stored encrypted.
func NewProviderRepository(db *DB, enc *Encryption) *ProviderRepository {
	return &ProviderRepository{db: db, enc: enc}
}

const providerColumns = `id, name, provider_type, status, config, credentials, created_at, updated_at`

// GetByID retrieves a provider by ID
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	var provider models.Provider
	query := `SELECT ` + providerColumns + ` FROM llm_providers WHERE id = $1`

	err := r.db.conn.GetContext(ctx, &provider, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return reveal(r.enc, &provider)
}

// List returns all providers ordered by name
func (r *ProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM llm_providers ORDER BY name`

	var rows []*models.Provider
	if err := r.db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	providers := make([]*models.Provider, 0, len(rows))
	for _, row := range rows {
		p, err := reveal(r.enc, row)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// Upsert creates a provider, or replaces it when the id exists. A missing id
// is generated.
func (r *ProviderRepository) Upsert(ctx context.Context, provider *models.Provider) error {
	if provider.ID == "" {
		provider.ID = uuid.NewString()
	}

	query := `
		INSERT INTO llm_providers (id, name, provider_type, status, config, credentials)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, provider_type = EXCLUDED.provider_type,
		    status = EXCLUDED.status, config = EXCLUDED.config,
		    credentials = EXCLUDED.credentials, updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		provider.ID, provider.Name, provider.Type, provider.Status,
		textValue(provider.Config), textValue(provider.Credentials),
	).Scan(&provider.CreatedAt, &provider.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}

	return nil
}

// Delete removes a provider
func (r *ProviderRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.conn.ExecContext(ctx, `DELETE FROM llm_providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrProviderNotFound
	}

	return nil
}

// textValue binds settings to a TEXT column. lib/pq sends []byte as bytea,
// which TEXT rejects.
func textValue(s models.RawSettings) any {
	if len(s) == 0 {
		return nil
	}
	return string(s)
}
