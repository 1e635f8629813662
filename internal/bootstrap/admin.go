// Package bootstrap seeds data the service needs before serving traffic.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/vbilous/contactbook/internal/config"
	"github.com/vbilous/contactbook/internal/domain"
	"github.com/vbilous/contactbook/internal/password"
	"github.com/vbilous/contactbook/internal/repository"
)

// EnsureAdmin creates a verified admin account on startup when ADMIN_EMAIL
// and ADMIN_PASSWORD are configured. Useful for dev and e2e environments.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, users, node, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || cfg.AdminPassword == "" {
		return nil
	}

	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("bootstrap lookup user: %w", err)
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	created, err := users.Create(ctx, domain.User{
		ID:           node.Generate().Int64(),
		Email:        email,
		PasswordHash: hashed,
		Role:         domain.RoleAdmin,
		IsVerified:   true,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil
		}
		return fmt.Errorf("bootstrap create user: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap admin user created",
			zap.String("email", created.Email),
			zap.Int64("user_id", created.ID),
		)
	}
	return nil
}
