package token

import (
	"context"
	"time"

	"github.com/veloway-app/authsvc/internal/cache"
)

// Blacklist registra tokens revocados por jti. Solo inserciones; las
// entradas expiran junto con el token que marcan.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const blacklistPrefix = "token:revoked:"

// cacheBlacklist implementa Blacklist sobre el cache (memory o redis).
type cacheBlacklist struct {
	cache cache.Client
}

// NewBlacklist crea una Blacklist sobre el cliente de cache dado.
func NewBlacklist(c cache.Client) Blacklist {
	return &cacheBlacklist{cache: c}
}

func (b *cacheBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return b.cache.Set(ctx, blacklistPrefix+jti, "1", ttl)
}

func (b *cacheBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return b.cache.Exists(ctx, blacklistPrefix+jti)
}
