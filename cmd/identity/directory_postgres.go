package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tekauth/cmd/security/password"
)

// PostgresDirectory implements Directory over PostgreSQL.
//
// The pgx pool is owned by the caller; the directory never closes it. Schema
// and table identifiers are quoted with pgx.Identifier.
type PostgresDirectory struct {
	pool      *pgxpool.Pool
	schema    string
	passwords password.Config
}

// PostgresOption configures the directory.
type PostgresOption func(*PostgresDirectory) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema holding the users and audit_log tables.
const DefaultSchema = "tekauth"

// WithSchema sets the Postgres schema (default "tekauth"). The name must be a
// plain PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !ValidSchemaName(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		d.schema = schema
		return nil
	}
}

// WithPasswordConfig sets the hashing config used by CreateUser.
func WithPasswordConfig(cfg password.Config) PostgresOption {
	return func(d *PostgresDirectory) error {
		d.passwords = cfg
		return nil
	}
}

// ValidSchemaName reports whether s is usable as an unquoted schema name.
func ValidSchemaName(s string) bool { return pgIdentRe.MatchString(s) }

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{
		pool:      pool,
		schema:    DefaultSchema,
		passwords: password.DefaultConfig(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return d, nil
}

const userColumns = `id, email, full_name, role, is_banned, password_hash, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.IsBanned, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

func (d *PostgresDirectory) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, notFound(op)
	}

	u, err := scanUser(d.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+pgIdent(d.schema, "users")+` WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, notFound(op)
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (d *PostgresDirectory) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, notFound(op)
	}

	u, err := scanUser(d.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+pgIdent(d.schema, "users")+` WHERE email_norm = $1`,
		norm,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, notFound(op)
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (d *PostgresDirectory) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	if !plausibleEmail(email) {
		return User{}, invalid(op, "email is invalid")
	}
	hash, err := hashNewPassword(op, d.passwords, in.Password)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           id,
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         normalizeRole(in.Role),
		PasswordHash: hash,
		CreatedAt:    now,
	}

	_, err = d.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(d.schema, "users")+` (
		     id, email, email_norm, full_name, role, is_banned, password_hash, created_at
		   ) VALUES ($1, $2, $3, $4, $5, false, $6, $7)`,
		u.ID, u.Email, NormalizeEmail(u.Email), u.FullName, u.Role, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (d *PostgresDirectory) SetBanned(ctx context.Context, id string, banned bool) error {
	return d.updateOne(ctx, "identity.SetBanned",
		`UPDATE `+pgIdent(d.schema, "users")+` SET is_banned = $2 WHERE id = $1`,
		id, banned,
	)
}

func (d *PostgresDirectory) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	const op = "identity.UpdatePasswordHash"
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "empty hash")
	}
	return d.updateOne(ctx, op,
		`UPDATE `+pgIdent(d.schema, "users")+` SET password_hash = $2 WHERE id = $1`,
		id, hash,
	)
}

func (d *PostgresDirectory) updateOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	case c == "users_pkey":
		return "id", true
	default:
		return "unique", true
	}
}
