// Package cache provides the Redis-backed identity cache and access-token
// blacklist.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vbilous/contactbook/internal/domain"
	"github.com/vbilous/contactbook/internal/repository"
)

// RedisIdentityCache implements repository.IdentityCache and
// repository.TokenBlacklist on a shared Redis client.
type RedisIdentityCache struct {
	client redis.UniversalClient
}

var (
	_ repository.IdentityCache  = (*RedisIdentityCache)(nil)
	_ repository.TokenBlacklist = (*RedisIdentityCache)(nil)
)

// NewRedisIdentityCache constructs the cache adapter.
func NewRedisIdentityCache(client redis.UniversalClient) *RedisIdentityCache {
	return &RedisIdentityCache{client: client}
}

// identitySnapshot carries the full user record, including the password hash,
// which domain.User deliberately keeps out of its JSON form.
type identitySnapshot struct {
	ID           int64       `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"password_hash"`
	Role         domain.Role `json:"role"`
	IsVerified   bool        `json:"is_verified"`
	AvatarURL    string      `json:"avatar_url"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func identityKey(userID int64) string {
	return fmt.Sprintf("identity:%d", userID)
}

func blacklistKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return "bl:" + hex.EncodeToString(sum[:])
}

// Get returns the cached identity, or nil without error on a miss.
func (c *RedisIdentityCache) Get(ctx context.Context, userID int64) (*domain.User, error) {
	payload, err := c.client.Get(ctx, identityKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}
	var snap identitySnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &domain.User{
		ID:           snap.ID,
		Email:        snap.Email,
		PasswordHash: snap.PasswordHash,
		Role:         snap.Role,
		IsVerified:   snap.IsVerified,
		AvatarURL:    snap.AvatarURL,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
	}, nil
}

// Put stores the identity snapshot with the given TTL.
func (c *RedisIdentityCache) Put(ctx context.Context, user domain.User, ttl time.Duration) error {
	payload, err := json.Marshal(identitySnapshot{
		ID:           user.ID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		IsVerified:   user.IsVerified,
		AvatarURL:    user.AvatarURL,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := c.client.Set(ctx, identityKey(user.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}
	return nil
}

// Invalidate removes the cached identity.
func (c *RedisIdentityCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, identityKey(userID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("invalidate identity: %w", err)
	}
	return nil
}

// BlacklistToken marks a raw access token revoked. The key is the token's
// SHA-256, so the token itself is never stored.
func (c *RedisIdentityCache) BlacklistToken(ctx context.Context, raw string, ttl time.Duration) error {
	if err := c.client.Set(ctx, blacklistKey(raw), "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether the token was revoked.
func (c *RedisIdentityCache) IsBlacklisted(ctx context.Context, raw string) (bool, error) {
	n, err := c.client.Exists(ctx, blacklistKey(raw)).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return n > 0, nil
}
