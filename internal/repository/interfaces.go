package repository

import (
	"context"
	"time"

	"github.com/vbilous/contactbook/internal/domain"
)

// UserRepository exposes persistence for account identities.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	SetVerified(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateRole(ctx context.Context, id int64, role domain.Role) error
	UpdateAvatar(ctx context.Context, id int64, avatarURL string) (domain.User, error)
}

// ContactRepository persists address book entries. Every query is scoped to
// the owning user; cross-owner access is not expressible through it.
type ContactRepository interface {
	Create(ctx context.Context, contact domain.Contact) (domain.Contact, error)
	GetByID(ctx context.Context, ownerID, id int64) (domain.Contact, error)
	List(ctx context.Context, ownerID int64, filter domain.ContactFilter) ([]domain.Contact, error)
	Update(ctx context.Context, contact domain.Contact) (domain.Contact, error)
	Delete(ctx context.Context, ownerID, id int64) error
	UpcomingBirthdays(ctx context.Context, ownerID int64, days int) ([]domain.Contact, error)
}

// IdentityCache maps a resolved user identity to a short-lived snapshot so
// request handling does not hit the store on every call. It is an
// optimization only: callers must treat every error as a miss on the read
// path, and the entry TTL must never exceed the access token TTL.
type IdentityCache interface {
	Get(ctx context.Context, userID int64) (*domain.User, error)
	Put(ctx context.Context, user domain.User, ttl time.Duration) error
	Invalidate(ctx context.Context, userID int64) error
}

// TokenBlacklist records access tokens revoked before their natural expiry.
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, raw string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, raw string) (bool, error)
}
