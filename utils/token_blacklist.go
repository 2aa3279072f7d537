package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "jwt:blacklist:"

// TokenBlacklist remembers revoked token IDs until their natural expiry.
// Redis is used when a client is given; otherwise entries live in process memory.
type TokenBlacklist struct {
	rc *redis.Client

	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewTokenBlacklist creates a blacklist; rc may be nil.
func NewTokenBlacklist(rc *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rc: rc, entries: map[string]time.Time{}}
}

// Revoke stores a token ID until expiresAt.
func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 || tokenID == "" {
		return
	}
	if b.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := b.rc.Set(ctx, blacklistPrefix+tokenID, "1", ttl).Err()
		if err == nil {
			return
		}
		Sugar.Warnf("token blacklist redis set failed, keeping in memory: %v", err)
	}
	b.mu.Lock()
	b.cleanupLocked()
	b.entries[tokenID] = expiresAt
	b.mu.Unlock()
}

// IsRevoked checks if a token was revoked before natural expiration.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) bool {
	if b.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		n, err := b.rc.Exists(ctx, blacklistPrefix+tokenID).Result()
		if err == nil && n > 0 {
			return true
		}
		if err != nil {
			Sugar.Warnf("token blacklist redis lookup failed: %v", err)
		}
	}
	b.mu.RLock()
	exp, ok := b.entries[tokenID]
	b.mu.RUnlock()
	return ok && time.Now().Before(exp)
}

func (b *TokenBlacklist) cleanupLocked() {
	now := time.Now()
	for id, exp := range b.entries {
		if now.After(exp) {
			delete(b.entries, id)
		}
	}
}
