package storage

import "errors"

var (
	// ErrProviderNotFound is returned when a provider is not found
	ErrProviderNotFound = errors.New("provider not found")

	// ErrInvalidCredentials is returned when stored credentials cannot be decrypted
	ErrInvalidCredentials = errors.New("invalid provider credentials")

	// ErrEncryptionUnavailable is returned when a credential is encrypted but no key is configured
	ErrEncryptionUnavailable = errors.New("encrypted credential found but no encryption key is configured")
)
