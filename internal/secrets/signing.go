package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/metrics"
	pkgsecrets "github.com/Checker-Finance/marketplace/pkg/secrets"
)

// SecretField is the key inside the secret map that holds the signing key.
const SecretField = "jwt_secret"

// SigningKeys resolves the HMAC key used to verify bearer tokens. The key is
// read from the secrets provider by name and cached; a static key skips the
// provider entirely.
type SigningKeys struct {
	logger   *zap.Logger
	name     string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[[]byte]
	static   []byte
}

// NewSigningKeys resolves the key named name through provider.
func NewSigningKeys(logger *zap.Logger, name string, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[[]byte]) *SigningKeys {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = pkgsecrets.NewCache[[]byte](time.Hour)
	}
	return &SigningKeys{logger: logger, name: name, provider: provider, cache: cache}
}

// StaticSigningKeys always returns key.
func StaticSigningKeys(key []byte) *SigningKeys {
	return &SigningKeys{logger: zap.NewNop(), static: key}
}

// Key returns the current signing key.
func (s *SigningKeys) Key(ctx context.Context) ([]byte, error) {
	if len(s.static) > 0 {
		return s.static, nil
	}
	if s.provider == nil {
		return nil, errors.New("no signing key configured")
	}

	key, hit, err := s.cache.GetOrLoad(ctx, s.name, s.fetch)
	if err != nil {
		return nil, err
	}
	if hit {
		metrics.IncCacheHit("hit")
	} else {
		metrics.IncCacheHit("miss")
	}
	return key, nil
}

func (s *SigningKeys) fetch(ctx context.Context) ([]byte, error) {
	secret, err := s.provider.GetSecret(ctx, s.name)
	if err != nil {
		s.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", s.name),
			zap.Error(err))
		return nil, fmt.Errorf("resolve signing key %q: %w", s.name, err)
	}
	raw, ok := secret[SecretField]
	if !ok {
		// plaintext secrets carry the key as their whole value
		raw = secret[pkgsecrets.PlainField]
	}
	if raw == "" {
		return nil, fmt.Errorf("secret %q has no %s field", s.name, SecretField)
	}
	s.logger.Info("aws.signing_key_resolved", zap.String("key", s.name))
	return []byte(raw), nil
}

// Rotate drops the cached key so the next Key call refetches it.
func (s *SigningKeys) Rotate() {
	if s.cache != nil {
		s.cache.Bust(s.name)
	}
}
