package storage

import (
	"context"
	"fmt"
	"strings"

	"lens_gateway/internal/models"
)

// ProviderStore is the provider registry read by the gateway.
type ProviderStore interface {
	// GetByID returns ErrProviderNotFound when no provider has the id
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	List(ctx context.Context) ([]*models.Provider, error)
}

// encryptedPrefix marks a credential value sealed with Encryption.
const encryptedPrefix = "enc:"

// revealCredentials replaces every "enc:"-prefixed string in the credentials
// with its plaintext. Blobs that do not decode are returned unchanged so the
// dispatcher reports them as invalid configuration.
func revealCredentials(enc *Encryption, raw models.RawSettings) (models.RawSettings, error) {
	creds, err := raw.Decode()
	if err != nil {
		return raw, nil
	}

	changed := false
	for key, value := range creds {
		s, ok := value.(string)
		if !ok || !strings.HasPrefix(s, encryptedPrefix) {
			continue
		}
		if enc == nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrEncryptionUnavailable)
		}

		plain, err := enc.Decrypt(strings.TrimPrefix(s, encryptedPrefix))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCredentials, key, err)
		}
		creds[key] = string(plain)
		changed = true
	}

	if !changed {
		return raw, nil
	}
	return models.NewRawSettings(creds)
}

// reveal returns a copy of p with decrypted credentials.
func reveal(enc *Encryption, p *models.Provider) (*models.Provider, error) {
	creds, err := revealCredentials(enc, p.Credentials)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.ID, err)
	}
	out := *p
	out.Credentials = creds
	return &out, nil
}
