package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	avataradapter "github.com/vbilous/contactbook/internal/adapter/avatar"
	cacheadapter "github.com/vbilous/contactbook/internal/adapter/cache"
	mailadapter "github.com/vbilous/contactbook/internal/adapter/mail"
	"github.com/vbilous/contactbook/internal/auth"
	"github.com/vbilous/contactbook/internal/bootstrap"
	"github.com/vbilous/contactbook/internal/config"
	"github.com/vbilous/contactbook/internal/contacts"
	httptransport "github.com/vbilous/contactbook/internal/http"
	"github.com/vbilous/contactbook/internal/http/handler"
	httpmiddleware "github.com/vbilous/contactbook/internal/http/middleware"
	apimiddleware "github.com/vbilous/contactbook/internal/middleware"
	"github.com/vbilous/contactbook/internal/repository"
	"github.com/vbilous/contactbook/internal/server"
	"github.com/vbilous/contactbook/internal/telemetry"
	"github.com/vbilous/contactbook/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newContactRepository,
			newRedisClient,
			newIdentityCache,
			newTokenBlacklist,
			newTokenService,
			newMailer,
			newAvatarStore,
			newAuthService,
			newContactsService,
			newRateLimiter,
			handler.NewAuthHandler,
			handler.NewUserHandler,
			handler.NewContactHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repository.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newContactRepository(pool *pgxpool.Pool) repository.ContactRepository {
	return repository.NewPostgresContactRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newIdentityCache(client redis.UniversalClient) repository.IdentityCache {
	return cacheadapter.NewRedisIdentityCache(client)
}

func newTokenBlacklist(client redis.UniversalClient) repository.TokenBlacklist {
	return cacheadapter.NewRedisIdentityCache(client)
}

func newTokenService(cfg config.Config) (*token.Service, error) {
	return token.NewService([]byte(cfg.JWTSigningSecret))
}

func newMailer(cfg config.Config) auth.Mailer {
	return mailadapter.NewResendMailer(cfg.ResendAPIKey, cfg.MailFrom, cfg.PublicURL)
}

func newAvatarStore(cfg config.Config) (auth.AvatarStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return avataradapter.NewS3Store(ctx, cfg)
}

func newAuthService(
	users repository.UserRepository,
	cache repository.IdentityCache,
	blacklist repository.TokenBlacklist,
	tokens *token.Service,
	mailer auth.Mailer,
	avatars auth.AvatarStore,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) *auth.Service {
	return auth.NewService(users, cache, blacklist, tokens, mailer, avatars, node, cfg, logger)
}

func newContactsService(repo repository.ContactRepository, node *snowflake.Node, logger *zap.Logger) *contacts.Service {
	return contacts.NewService(repo, node, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthMiddleware(authService *auth.Service) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{AuthService: authService}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
