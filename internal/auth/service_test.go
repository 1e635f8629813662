package auth_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vbilous/contactbook/internal/auth"
	"github.com/vbilous/contactbook/internal/config"
	"github.com/vbilous/contactbook/internal/domain"
	pw "github.com/vbilous/contactbook/internal/password"
	"github.com/vbilous/contactbook/internal/token"
)

type memUserRepo struct {
	mu      sync.Mutex
	users   map[int64]domain.User
	byEmail map[string]int64
	gets    int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int64]domain.User{}, byEmail: map[string]int64{}}
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return r.users[id], nil
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (r *memUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[user.Email]; exists {
		return domain.User{}, domain.ErrDuplicateEmail
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return user, nil
}

func (r *memUserRepo) SetVerified(_ context.Context, id int64) error {
	return r.update(id, func(u *domain.User) { u.IsVerified = true })
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	return r.update(id, func(u *domain.User) { u.PasswordHash = hash })
}

func (r *memUserRepo) UpdateRole(_ context.Context, id int64, role domain.Role) error {
	return r.update(id, func(u *domain.User) { u.Role = role })
}

func (r *memUserRepo) UpdateAvatar(_ context.Context, id int64, url string) (domain.User, error) {
	if err := r.update(id, func(u *domain.User) { u.AvatarURL = url }); err != nil {
		return domain.User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *memUserRepo) update(id int64, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[int64]domain.User
	failing bool
	puts    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[int64]domain.User{}}
}

func (c *memCache) Get(_ context.Context, userID int64) (*domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return nil, errors.New("cache unavailable")
	}
	u, ok := c.entries[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (c *memCache) Put(_ context.Context, user domain.User, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("cache unavailable")
	}
	c.puts++
	c.entries[user.ID] = user
	return nil
}

func (c *memCache) Invalidate(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("cache unavailable")
	}
	delete(c.entries, userID)
	return nil
}

func (c *memCache) setFailing(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = v
}

func (c *memCache) has(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[userID]
	return ok
}

type memBlacklist struct {
	mu      sync.Mutex
	revoked map[string]struct{}
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{revoked: map[string]struct{}{}}
}

func (b *memBlacklist) BlacklistToken(_ context.Context, raw string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[raw] = struct{}{}
	return nil
}

func (b *memBlacklist) IsBlacklisted(_ context.Context, raw string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.revoked[raw]
	return ok, nil
}

type sentMail struct {
	to    string
	token string
}

type memMailer struct {
	mu     sync.Mutex
	verify []sentMail
	reset  []sentMail
}

func (m *memMailer) SendVerificationEmail(_ context.Context, to, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify = append(m.verify, sentMail{to: to, token: tok})
	return nil
}

func (m *memMailer) SendPasswordResetEmail(_ context.Context, to, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset = append(m.reset, sentMail{to: to, token: tok})
	return nil
}

func (m *memMailer) lastVerify() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.verify) == 0 {
		return sentMail{}, false
	}
	return m.verify[len(m.verify)-1], true
}

func (m *memMailer) lastReset() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reset) == 0 {
		return sentMail{}, false
	}
	return m.reset[len(m.reset)-1], true
}

func (m *memMailer) resetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reset)
}

type memAvatars struct{}

func (memAvatars) Upload(_ context.Context, userID int64, _ string, body io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://cdn.example.test/avatars/%d", userID), nil
}

type fixture struct {
	svc       *auth.Service
	users     *memUserRepo
	cache     *memCache
	blacklist *memBlacklist
	mailer    *memMailer
	tokens    *token.Service
	cfg       config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := token.NewService([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		VerifyTokenTTL:  24 * time.Hour,
		ResetTokenTTL:   time.Hour,
	}

	f := &fixture{
		users:     newMemUserRepo(),
		cache:     newMemCache(),
		blacklist: newMemBlacklist(),
		mailer:    &memMailer{},
		tokens:    tokens,
		cfg:       cfg,
	}
	f.svc = auth.NewService(f.users, f.cache, f.blacklist, tokens, f.mailer, memAvatars{}, node, cfg, zap.NewNop())
	return f
}

// register + verify, returning the stored user.
func (f *fixture) registerVerified(t *testing.T, email, password string) domain.User {
	t.Helper()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, email, password)
	require.NoError(t, err)

	var mail sentMail
	require.Eventually(t, func() bool {
		m, ok := f.mailer.lastVerify()
		mail = m
		return ok && m.to == user.Email
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.Verify(ctx, mail.token))

	verified, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	return verified
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, "Ann@Example.com", "sup3r-secret")
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", user.Email)
	require.False(t, user.IsVerified)
	require.Equal(t, domain.RoleUser, user.Role)

	_, err = f.svc.Register(ctx, "ann@example.com", "another-pass")
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestLoginRequiresVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "bob@example.com", "sup3r-secret")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "bob@example.com", "sup3r-secret")
	require.ErrorIs(t, err, domain.ErrNotVerified)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "carol@example.com", "sup3r-secret")

	_, err := f.svc.Login(ctx, "carol@example.com", "wrong-password")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	// Unknown account and wrong password are the same error.
	_, err = f.svc.Login(ctx, "nobody@example.com", "sup3r-secret")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestVerifyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "dan@example.com", "sup3r-secret")
	require.NoError(t, err)

	var mail sentMail
	require.Eventually(t, func() bool {
		m, ok := f.mailer.lastVerify()
		mail = m
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.Verify(ctx, mail.token))
	require.NoError(t, f.svc.Verify(ctx, mail.token))
}

func TestVerifyRejectsOtherPurposes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerVerified(t, "erin@example.com", "sup3r-secret")

	access, err := f.tokens.Issue(fmt.Sprint(user.ID), token.PurposeAccess, time.Minute)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Verify(ctx, access), domain.ErrInvalidToken)
}

func TestLoginAndResolveCurrentUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerVerified(t, "fred@example.com", "sup3r-secret")

	pair, err := f.svc.Login(ctx, "fred@example.com", "sup3r-secret")
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int(f.cfg.AccessTokenTTL.Seconds()), pair.ExpiresIn)
	require.NotEmpty(t, pair.RefreshToken)

	resolved, err := f.svc.ResolveCurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)
	require.Equal(t, user.Email, resolved.Email)

	// Login warmed the cache, so resolution never touched the store.
	require.Equal(t, 0, storeReadsDuring(f, func() {
		_, err := f.svc.ResolveCurrentUser(ctx, pair.AccessToken)
		require.NoError(t, err)
	}))
}

func TestResolveRepopulatesCacheAfterMiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerVerified(t, "gina@example.com", "sup3r-secret")

	pair, err := f.svc.Login(ctx, "gina@example.com", "sup3r-secret")
	require.NoError(t, err)

	require.NoError(t, f.cache.Invalidate(ctx, user.ID))

	reads := storeReadsDuring(f, func() {
		_, err := f.svc.ResolveCurrentUser(ctx, pair.AccessToken)
		require.NoError(t, err)
	})
	require.Equal(t, 1, reads)
	require.True(t, f.cache.has(user.ID))
}

func TestResolveDegradesWhenCacheDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerVerified(t, "hugo@example.com", "sup3r-secret")

	pair, err := f.svc.Login(ctx, "hugo@example.com", "sup3r-secret")
	require.NoError(t, err)

	f.cache.setFailing(true)
	resolved, err := f.svc.ResolveCurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)
}

func TestResolveRejectsGarbageAndDeletedUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ResolveCurrentUser(ctx, "not-a-token")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	// A token whose subject no longer exists resolves to nothing.
	orphan, err := f.tokens.Issue("424242", token.PurposeAccess, time.Minute)
	require.NoError(t, err)
	_, err = f.svc.ResolveCurrentUser(ctx, orphan)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRefreshKeepsRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "iris@example.com", "sup3r-secret")

	pair, err := f.svc.Login(ctx, "iris@example.com", "sup3r-secret")
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, next.RefreshToken)
	require.NotEmpty(t, next.AccessToken)

	_, err = f.svc.ResolveCurrentUser(ctx, next.AccessToken)
	require.NoError(t, err)

	// Access tokens are never accepted as refresh tokens.
	_, err = f.svc.Refresh(ctx, pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerVerified(t, "jane@example.com", "old-password-1")

	pair, err := f.svc.Login(ctx, "jane@example.com", "old-password-1")
	require.NoError(t, err)
	require.True(t, f.cache.has(user.ID))

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "jane@example.com"))

	var mail sentMail
	require.Eventually(t, func() bool {
		m, ok := f.mailer.lastReset()
		mail = m
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.ResetPassword(ctx, mail.token, "new-password-1"))

	// The cached identity was dropped before the reset was acknowledged.
	require.False(t, f.cache.has(user.ID))

	// The old access token still resolves, and the resolution reloads the
	// post-reset record from the store rather than a stale cached one.
	resolved, err := f.svc.ResolveCurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	match, err := pw.Verify("new-password-1", resolved.PasswordHash)
	require.NoError(t, err)
	require.True(t, match)

	_, err = f.svc.Login(ctx, "jane@example.com", "old-password-1")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "jane@example.com", "new-password-1")
	require.NoError(t, err)
}

func TestPasswordResetDoesNotLeakExistence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ghost@example.com"))

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, f.mailer.resetCount())
}

func TestResetPasswordFailsWhenInvalidateFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "kate@example.com", "old-password-1")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "kate@example.com"))
	var mail sentMail
	require.Eventually(t, func() bool {
		m, ok := f.mailer.lastReset()
		mail = m
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	f.cache.setFailing(true)
	require.Error(t, f.svc.ResetPassword(ctx, mail.token, "new-password-1"))
}

func TestChangeRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.registerVerified(t, "root@example.com", "sup3r-secret")
	require.NoError(t, f.users.UpdateRole(ctx, admin.ID, domain.RoleAdmin))
	admin.Role = domain.RoleAdmin

	target := f.registerVerified(t, "lena@example.com", "sup3r-secret")
	_, err := f.svc.Login(ctx, "lena@example.com", "sup3r-secret")
	require.NoError(t, err)
	require.True(t, f.cache.has(target.ID))

	require.ErrorIs(t, f.svc.ChangeRole(ctx, target, admin.ID, domain.RoleUser), domain.ErrForbidden)

	require.NoError(t, f.svc.ChangeRole(ctx, admin, target.ID, domain.RoleAdmin))
	require.False(t, f.cache.has(target.ID))

	updated, err := f.users.GetByID(ctx, target.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, updated.Role)

	require.ErrorIs(t, f.svc.ChangeRole(ctx, admin, 999999, domain.RoleUser), domain.ErrNotFound)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "mike@example.com", "sup3r-secret")

	pair, err := f.svc.Login(ctx, "mike@example.com", "sup3r-secret")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.AccessToken))

	_, err = f.svc.ResolveCurrentUser(ctx, pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestUpdateAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerVerified(t, "nina@example.com", "sup3r-secret")

	updated, err := f.svc.UpdateAvatar(ctx, user, "image/png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("https://cdn.example.test/avatars/%d", user.ID), updated.AvatarURL)
}

func storeReadsDuring(f *fixture, fn func()) int {
	f.users.mu.Lock()
	before := f.users.gets
	f.users.mu.Unlock()
	fn()
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	return f.users.gets - before
}
