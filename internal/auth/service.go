// Package auth coordinates the account lifecycle: registration, email
// verification, login, session refresh, identity resolution, and password
// reset.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vbilous/contactbook/internal/config"
	"github.com/vbilous/contactbook/internal/domain"
	pw "github.com/vbilous/contactbook/internal/password"
	"github.com/vbilous/contactbook/internal/repository"
	"github.com/vbilous/contactbook/internal/token"
)

// Mailer dispatches account emails. Calls are fire-and-forget from the
// service's perspective; failures are logged, never retried.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// AvatarStore uploads a profile image and returns its public URL.
type AvatarStore interface {
	Upload(ctx context.Context, userID int64, contentType string, body io.Reader) (string, error)
}

// TokenPair is the login/refresh response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

const mailTimeout = 10 * time.Second

// Service orchestrates the authentication state machine. Tokens are
// stateless signed credentials; the identity cache is an optimization and
// never a source of truth for authorization.
type Service struct {
	users     repository.UserRepository
	cache     repository.IdentityCache
	blacklist repository.TokenBlacklist
	tokens    *token.Service
	mailer    Mailer
	avatars   AvatarStore
	node      *snowflake.Node
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewService wires dependencies.
func NewService(users repository.UserRepository, cache repository.IdentityCache, blacklist repository.TokenBlacklist, tokens *token.Service, mailer Mailer, avatars AvatarStore, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *Service {
	return &Service{
		users:     users,
		cache:     cache,
		blacklist: blacklist,
		tokens:    tokens,
		mailer:    mailer,
		avatars:   avatars,
		node:      node,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/vbilous/contactbook/internal/auth"),
	}
}

// Register creates an unverified account and dispatches the verification
// email. No session is issued until the email is verified.
func (s *Service) Register(ctx context.Context, email, password string) (domain.User, error) {
	ctx, span := s.startSpan(ctx, "auth.Register")
	defer span.End()

	normalized := normalizeEmail(email)
	if _, err := s.users.GetByEmail(ctx, normalized); err == nil {
		return domain.User{}, domain.ErrDuplicateEmail
	} else if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		return domain.User{}, fmt.Errorf("register lookup: %w", err)
	}

	hash, err := pw.Hash(password)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, domain.User{
		ID:           s.node.Generate().Int64(),
		Email:        normalized,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsVerified:   false,
	})
	if err != nil {
		// The duplicate check above races with concurrent registration; the
		// unique index is authoritative.
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return domain.User{}, domain.ErrDuplicateEmail
		}
		span.RecordError(err)
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	verifyToken, err := s.tokens.Issue(subjectOf(user), token.PurposeVerifyEmail, s.cfg.VerifyTokenTTL)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, fmt.Errorf("issue verification token: %w", err)
	}
	s.dispatchMail("verification", user.Email, verifyToken, s.mailer.SendVerificationEmail)

	s.audit("user.registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Verify consumes an email-verification token. Verifying an already verified
// account succeeds, indistinguishable from the first call.
func (s *Service) Verify(ctx context.Context, raw string) error {
	ctx, span := s.startSpan(ctx, "auth.Verify")
	defer span.End()

	user, err := s.userFromToken(ctx, raw, token.PurposeVerifyEmail)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return nil
	}
	if err := s.users.SetVerified(ctx, user.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("mark verified: %w", err)
	}

	s.audit("user.verified", "user_id", user.ID)
	return nil
}

// Login authenticates with email and password and issues an access+refresh
// pair. Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	ctx, span := s.startSpan(ctx, "auth.Login")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	valid, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, domain.ErrNotVerified
	}

	pair, err := s.issuePair(user)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.cache.Put(ctx, user, s.cfg.AccessTokenTTL); err != nil {
		s.log().Warn("identity cache put failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	s.audit("user.login", "user_id", user.ID)
	return pair, nil
}

// Refresh mints a new access token from a valid refresh token. Refresh
// tokens do not rotate: the presented one stays valid until its expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, span := s.startSpan(ctx, "auth.Refresh")
	defer span.End()

	subject, err := s.tokens.Validate(refreshToken, token.PurposeRefresh)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	user, err := s.userBySubject(ctx, subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	access, err := s.tokens.Issue(subjectOf(user), token.PurposeAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.audit("session.refreshed", "user_id", user.ID)
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// ResolveCurrentUser maps an access token to the user it identifies. The
// cached identity is consulted before the store; every fall-through to the
// store repopulates the cache before returning. A cache failure degrades to
// a store lookup, never to a request failure.
func (s *Service) ResolveCurrentUser(ctx context.Context, accessToken string) (domain.User, error) {
	ctx, span := s.startSpan(ctx, "auth.ResolveCurrentUser")
	defer span.End()

	subject, err := s.tokens.Validate(accessToken, token.PurposeAccess)
	if err != nil {
		return domain.User{}, domain.ErrUnauthorized
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return domain.User{}, domain.ErrUnauthorized
	}

	if revoked, err := s.blacklist.IsBlacklisted(ctx, accessToken); err != nil {
		s.log().Warn("token blacklist check failed", zap.Error(err))
	} else if revoked {
		return domain.User{}, domain.ErrUnauthorized
	}

	if cached, err := s.cache.Get(ctx, userID); err != nil {
		s.log().Warn("identity cache get failed", zap.Int64("user_id", userID), zap.Error(err))
	} else if cached != nil {
		return *cached, nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUnauthorized
		}
		span.RecordError(err)
		return domain.User{}, fmt.Errorf("resolve user: %w", err)
	}

	if err := s.cache.Put(ctx, user, s.cfg.AccessTokenTTL); err != nil {
		s.log().Warn("identity cache put failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

// RequestPasswordReset issues and mails a reset token when the account
// exists. It reports success either way so callers cannot probe for
// registered emails.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := s.startSpan(ctx, "auth.RequestPasswordReset")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.log().Warn("password reset lookup failed", zap.Error(err))
		}
		return nil
	}

	resetToken, err := s.tokens.Issue(subjectOf(user), token.PurposeResetPassword, s.cfg.ResetTokenTTL)
	if err != nil {
		span.RecordError(err)
		s.log().Error("issue reset token failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil
	}
	s.dispatchMail("password reset", user.Email, resetToken, s.mailer.SendPasswordResetEmail)

	s.audit("password.reset_requested", "user_id", user.ID)
	return nil
}

// ResetPassword replaces the password hash and drops the cached identity.
// The invalidation happens before success is acknowledged so a concurrent
// reader cannot keep observing the pre-reset identity from cache.
func (s *Service) ResetPassword(ctx context.Context, raw, newPassword string) error {
	ctx, span := s.startSpan(ctx, "auth.ResetPassword")
	defer span.End()

	user, err := s.userFromToken(ctx, raw, token.PurposeResetPassword)
	if err != nil {
		return err
	}

	hash, err := pw.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		span.RecordError(err)
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.cache.Invalidate(ctx, user.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("invalidate cached identity: %w", err)
	}

	s.audit("password.reset", "user_id", user.ID)
	return nil
}

// ChangeRole elevates or demotes a user. Admin only. The target's cached
// identity is dropped before success is acknowledged.
func (s *Service) ChangeRole(ctx context.Context, actor domain.User, targetID int64, role domain.Role) error {
	ctx, span := s.startSpan(ctx, "auth.ChangeRole")
	defer span.End()

	if actor.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	if !role.Valid() {
		return &domain.Error{Code: "invalid_request", Description: "Unknown role.", Status: 400}
	}

	if err := s.users.UpdateRole(ctx, targetID, role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("update role: %w", err)
	}
	if err := s.cache.Invalidate(ctx, targetID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("invalidate cached identity: %w", err)
	}

	s.audit("user.role_changed", "actor_id", actor.ID, "user_id", targetID, "role", string(role))
	return nil
}

// Logout revokes the presented access token for the rest of its lifetime and
// drops the cached identity. The blacklist is advisory: tokens expire on
// their own, so a Redis outage only shortens the revocation, not the
// session's natural bound.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	ctx, span := s.startSpan(ctx, "auth.Logout")
	defer span.End()

	subject, err := s.tokens.Validate(accessToken, token.PurposeAccess)
	if err != nil {
		return domain.ErrUnauthorized
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return domain.ErrUnauthorized
	}

	// Full access TTL is an upper bound on the remaining lifetime.
	if err := s.blacklist.BlacklistToken(ctx, accessToken, s.cfg.AccessTokenTTL); err != nil {
		s.log().Warn("token blacklist failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log().Warn("identity cache invalidate failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	s.audit("user.logout", "user_id", userID)
	return nil
}

// UpdateAvatar uploads the image and persists its URL on the user record.
func (s *Service) UpdateAvatar(ctx context.Context, user domain.User, contentType string, body io.Reader) (domain.User, error) {
	ctx, span := s.startSpan(ctx, "auth.UpdateAvatar")
	defer span.End()

	url, err := s.avatars.Upload(ctx, user.ID, contentType, body)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, fmt.Errorf("upload avatar: %w", err)
	}

	updated, err := s.users.UpdateAvatar(ctx, user.ID, url)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, fmt.Errorf("persist avatar: %w", err)
	}
	if err := s.cache.Invalidate(ctx, user.ID); err != nil {
		s.log().Warn("identity cache invalidate failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	s.audit("user.avatar_updated", "user_id", user.ID)
	return updated, nil
}

func (s *Service) issuePair(user domain.User) (*TokenPair, error) {
	access, err := s.tokens.Issue(subjectOf(user), token.PurposeAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.Issue(subjectOf(user), token.PurposeRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) userFromToken(ctx context.Context, raw string, purpose token.Purpose) (domain.User, error) {
	subject, err := s.tokens.Validate(raw, purpose)
	if err != nil {
		return domain.User{}, domain.ErrInvalidToken
	}
	user, err := s.userBySubject(ctx, subject)
	if err != nil {
		return domain.User{}, domain.ErrInvalidToken
	}
	return user, nil
}

func (s *Service) userBySubject(ctx context.Context, subject string) (domain.User, error) {
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return domain.User{}, fmt.Errorf("parse subject: %w", err)
	}
	return s.users.GetByID(ctx, userID)
}

// dispatchMail sends in the background with its own deadline; the request
// that triggered the mail never waits on delivery.
func (s *Service) dispatchMail(kind, to, tok string, send func(context.Context, string, string) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		if err := send(ctx, to, tok); err != nil {
			s.log().Error("mail dispatch failed", zap.String("kind", kind), zap.String("to", to), zap.Error(err))
		}
	}()
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *Service) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func subjectOf(user domain.User) string {
	return strconv.FormatInt(user.ID, 10)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
