package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"lens_gateway/internal/models"
)

// ProviderWriter is a provider registry that accepts writes.
type ProviderWriter interface {
	ProviderStore
	Upsert(ctx context.Context, provider *models.Provider) error
	Delete(ctx context.Context, id string) error
}

// ImportResult summarizes an ImportProviders run
type ImportResult struct {
	Upserted     int      `json:"upserted"`
	Deleted      int      `json:"deleted"`
	UnknownTypes []string `json:"unknownTypes,omitempty"` // ids whose type no adapter serves
}

// ImportProviders writes every provider in src to dst. Credentials are
// written as given, so sealed values stay sealed. With prune, providers in
// dst that src does not name are deleted; listing dst then needs the key for
// any sealed credentials it holds.
func ImportProviders(ctx context.Context, dst ProviderWriter, src []*models.Provider, prune bool) (*ImportResult, error) {
	result := &ImportResult{}
	keep := make(map[string]bool, len(src))

	for _, p := range src {
		if !p.Type.Valid() {
			log.Warn().Str("provider_id", p.ID).Str("type", string(p.Type)).Msg("importing provider with unsupported type")
			result.UnknownTypes = append(result.UnknownTypes, p.ID)
		}
		if err := dst.Upsert(ctx, p); err != nil {
			return result, fmt.Errorf("provider %s: %w", p.ID, err)
		}
		keep[p.ID] = true
		result.Upserted++
	}

	if !prune {
		return result, nil
	}

	existing, err := dst.List(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list providers for pruning: %w", err)
	}
	for _, p := range existing {
		if keep[p.ID] {
			continue
		}
		if err := dst.Delete(ctx, p.ID); err != nil {
			return result, fmt.Errorf("provider %s: %w", p.ID, err)
		}
		result.Deleted++
	}

	return result, nil
}
