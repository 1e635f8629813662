package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vbilous/contactbook/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository    = (*PostgresUserRepo)(nil)
	_ ContactRepository = (*PostgresContactRepo)(nil)
)

const uniqueViolation = "23505"

// PostgresUserRepo implements UserRepository on pgx.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, email, password_hash, role, is_verified, avatar_url, created_at, updated_at`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const query = `INSERT INTO users (id, email, password_hash, role, is_verified, avatar_url)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRow(ctx, query,
		user.ID,
		strings.ToLower(user.Email),
		user.PasswordHash,
		string(user.Role),
		user.IsVerified,
		user.AvatarURL,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, domain.ErrDuplicateEmail
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *PostgresUserRepo) SetVerified(ctx context.Context, id int64) error {
	const query = `UPDATE users SET is_verified = TRUE, updated_at = now() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update password: %w", pgx.ErrNoRows)
	}
	return nil
}

func (r *PostgresUserRepo) UpdateRole(ctx context.Context, id int64, role domain.Role) error {
	const query = `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, string(role))
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update role: %w", pgx.ErrNoRows)
	}
	return nil
}

func (r *PostgresUserRepo) UpdateAvatar(ctx context.Context, id int64, avatarURL string) (domain.User, error) {
	const query = `UPDATE users SET avatar_url = $2, updated_at = now() WHERE id = $1
RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRow(ctx, query, id, avatarURL))
	if err != nil {
		return domain.User{}, fmt.Errorf("update avatar: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.IsVerified, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

// PostgresContactRepo implements ContactRepository on pgx.
type PostgresContactRepo struct {
	db *pgxpool.Pool
}

func NewPostgresContactRepo(pool *pgxpool.Pool) *PostgresContactRepo {
	return &PostgresContactRepo{db: pool}
}

const contactColumns = `id, owner_id, name, surname, email, phone, birthday, notes, created_at, updated_at`

func (r *PostgresContactRepo) Create(ctx context.Context, contact domain.Contact) (domain.Contact, error) {
	const query = `INSERT INTO contacts (id, owner_id, name, surname, email, phone, birthday, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + contactColumns

	created, err := scanContact(r.db.QueryRow(ctx, query,
		contact.ID,
		contact.OwnerID,
		contact.Name,
		contact.Surname,
		contact.Email,
		contact.Phone,
		contact.Birthday,
		contact.Notes,
	))
	if err != nil {
		return domain.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	return created, nil
}

func (r *PostgresContactRepo) GetByID(ctx context.Context, ownerID, id int64) (domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE owner_id = $1 AND id = $2`
	contact, err := scanContact(r.db.QueryRow(ctx, query, ownerID, id))
	if err != nil {
		return domain.Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

func (r *PostgresContactRepo) List(ctx context.Context, ownerID int64, filter domain.ContactFilter) ([]domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE owner_id = $1`
	args := []any{ownerID}

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		query += fmt.Sprintf(` AND (name ILIKE $%d OR surname ILIKE $%d OR email ILIKE $%d)`, len(args), len(args), len(args))
	}

	query += ` ORDER BY surname, name, id`

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

func (r *PostgresContactRepo) Update(ctx context.Context, contact domain.Contact) (domain.Contact, error) {
	const query = `UPDATE contacts
SET name = $3, surname = $4, email = $5, phone = $6, birthday = $7, notes = $8, updated_at = now()
WHERE owner_id = $1 AND id = $2
RETURNING ` + contactColumns

	updated, err := scanContact(r.db.QueryRow(ctx, query,
		contact.OwnerID,
		contact.ID,
		contact.Name,
		contact.Surname,
		contact.Email,
		contact.Phone,
		contact.Birthday,
		contact.Notes,
	))
	if err != nil {
		return domain.Contact{}, fmt.Errorf("update contact: %w", err)
	}
	return updated, nil
}

func (r *PostgresContactRepo) Delete(ctx context.Context, ownerID, id int64) error {
	const query = `DELETE FROM contacts WHERE owner_id = $1 AND id = $2`
	tag, err := r.db.Exec(ctx, query, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete contact: %w", pgx.ErrNoRows)
	}
	return nil
}

// UpcomingBirthdays compares month/day only, wrapping across year end when
// the window straddles December 31.
func (r *PostgresContactRepo) UpcomingBirthdays(ctx context.Context, ownerID int64, days int) ([]domain.Contact, error) {
	const query = `SELECT ` + contactColumns + ` FROM contacts
WHERE owner_id = $1 AND birthday IS NOT NULL AND (
  CASE WHEN to_char(now() + make_interval(days => $2), 'MMDD') >= to_char(now(), 'MMDD')
  THEN to_char(birthday, 'MMDD') BETWEEN to_char(now(), 'MMDD') AND to_char(now() + make_interval(days => $2), 'MMDD')
  ELSE to_char(birthday, 'MMDD') >= to_char(now(), 'MMDD')
    OR to_char(birthday, 'MMDD') <= to_char(now() + make_interval(days => $2), 'MMDD')
  END
)
ORDER BY to_char(birthday, 'MMDD')`

	rows, err := r.db.Query(ctx, query, ownerID, days)
	if err != nil {
		return nil, fmt.Errorf("upcoming birthdays: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

func scanContact(row pgx.Row) (domain.Contact, error) {
	var c domain.Contact
	var birthday *time.Time
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Surname, &c.Email, &c.Phone, &birthday, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Contact{}, err
	}
	c.Birthday = birthday
	return c, nil
}

func collectContacts(rows pgx.Rows) ([]domain.Contact, error) {
	contacts := make([]domain.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}
