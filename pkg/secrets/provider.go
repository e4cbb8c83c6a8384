package secrets

import "context"

// Provider defines a generic secrets manager interface.
// Concrete implementations (AWS, GCP, etc.) can satisfy this.
type Provider interface {
	// GetSecret retrieves a secret by key/path and returns a key-value map.
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}

// StaticProvider serves fixed secrets, for local runs and tests.
type StaticProvider map[string]map[string]string

func (s StaticProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	v, ok := s[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	return v, nil
}

// NotFoundError is returned by StaticProvider for unknown keys.
type NotFoundError struct{ Key string }

func (e *NotFoundError) Error() string { return "secret not found: " + e.Key }
