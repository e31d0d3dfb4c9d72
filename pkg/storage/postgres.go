package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

const uniqueViolation = "23505"

// schemaDDL bootstraps the tables on startup so a fresh database is
// usable without an external migration step. Uniqueness on users is
// scoped to live rows so a soft-deleted account frees its email and
// username for re-registration.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id                    TEXT PRIMARY KEY,
	subject_id            TEXT NOT NULL,
	email                 TEXT NOT NULL,
	username              TEXT NOT NULL,
	first_name            TEXT NOT NULL DEFAULT '',
	last_name             TEXT NOT NULL DEFAULT '',
	roles                 TEXT[] NOT NULL DEFAULT '{}',
	email_verified        BOOLEAN NOT NULL DEFAULT FALSE,
	active                BOOLEAN NOT NULL DEFAULT TRUE,
	password_reset_hash   TEXT,
	password_reset_expiry TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted_at            TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_live_idx ON users (email) WHERE deleted_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS users_username_live_idx ON users (username) WHERE deleted_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS users_subject_live_idx ON users (subject_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS users_reset_hash_idx ON users (password_reset_hash) WHERE password_reset_hash IS NOT NULL;

CREATE TABLE IF NOT EXISTS vendor_requests (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users (id),
	business_name    TEXT NOT NULL,
	business_type    TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	rejection_reason TEXT,
	reviewed_by      TEXT,
	reviewed_at      TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS vendor_requests_user_idx ON vendor_requests (user_id);
CREATE INDEX IF NOT EXISTS vendor_requests_status_idx ON vendor_requests (status);

CREATE TABLE IF NOT EXISTS vendor_profiles (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL REFERENCES users (id),
	business_name TEXT NOT NULL,
	business_type TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	rating        DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating_count  BIGINT NOT NULL DEFAULT 0,
	order_count   BIGINT NOT NULL DEFAULT 0,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS vendor_profiles_user_idx ON vendor_profiles (user_id);
CREATE INDEX IF NOT EXISTS vendor_profiles_type_idx ON vendor_profiles (business_type);
`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig tunes the connection pool.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// NewPostgresStore opens the pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := bootstrapSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

func bootstrapSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return nil
}

// NewPostgresStoreWithDB wraps an existing pool; used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *PostgresStore) Close() error                   { return s.db.Close() }

// DB exposes the underlying pool, used by the health checker.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// ReportPoolMetrics publishes connection pool gauges on the interval
// until ctx is cancelled.
func (s *PostgresStore) ReportPoolMetrics(ctx context.Context, m *observability.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := s.db.Stats()
				m.DBConnectionsActive.Set(float64(stats.InUse))
				m.DBConnectionsIdle.Set(float64(stats.Idle))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func mapPQError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrConflict
	}
	return err
}

const userColumns = `id, subject_id, email, username, first_name, last_name, roles,
	email_verified, active, password_reset_hash, password_reset_expiry,
	created_at, updated_at, deleted_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var resetHash sql.NullString
	err := row.Scan(
		&u.ID, &u.SubjectID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
		pq.Array(&u.Roles), &u.EmailVerified, &u.Active,
		&resetHash, &u.PasswordResetExpiry,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	)
	if err != nil {
		return nil, mapPQError(err)
	}
	u.PasswordResetHash = resetHash.String
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	query := `
		INSERT INTO users (id, subject_id, email, username, first_name, last_name, roles, email_verified, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		user.ID, user.SubjectID, user.Email, user.Username,
		user.FirstName, user.LastName, pq.Array(user.Roles),
		user.EmailVerified, user.Active,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) getUserWhere(ctx context.Context, clause string, arg interface{}) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s AND deleted_at IS NULL`, userColumns, clause)
	return scanUser(s.db.QueryRowContext(ctx, query, arg))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUserWhere(ctx, "id = $1", id)
}

func (s *PostgresStore) GetUserBySubject(ctx context.Context, subjectID string) (*User, error) {
	return s.getUserWhere(ctx, "subject_id = $1", subjectID)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUserWhere(ctx, "LOWER(email) = LOWER($1)", email)
}

func (s *PostgresStore) GetUserByResetHash(ctx context.Context, hash string) (*User, error) {
	return s.getUserWhere(ctx, "password_reset_hash = $1", hash)
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET email = $2, username = $3, first_name = $4, last_name = $5,
			roles = $6, email_verified = $7, active = $8,
			password_reset_hash = NULLIF($9, ''), password_reset_expiry = $10,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Username, user.FirstName, user.LastName,
		pq.Array(user.Roles), user.EmailVerified, user.Active,
		user.PasswordResetHash, user.PasswordResetExpiry,
	).Scan(&user.UpdatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]*User, int64, error) {
	where := []string{"deleted_at IS NULL"}
	args := []interface{}{}

	if filter.Role != "" {
		args = append(args, filter.Role)
		where = append(where, fmt.Sprintf("$%d = ANY(roles)", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(email ILIKE $%d OR username ILIKE $%d)", len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM users WHERE %s", clause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, mapPQError(err)
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		userColumns, clause, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapPQError(err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (s *PostgresStore) SoftDeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = NOW(), active = false, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return mapPQError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const requestColumns = `id, user_id, business_name, business_type, description, phone,
	status, rejection_reason, reviewed_by, reviewed_at, created_at, updated_at`

func scanRequest(row interface{ Scan(...interface{}) error }) (*VendorRequest, error) {
	var r VendorRequest
	var reason, reviewedBy sql.NullString
	err := row.Scan(
		&r.ID, &r.UserID, &r.BusinessName, &r.BusinessType, &r.Description, &r.Phone,
		&r.Status, &reason, &reviewedBy, &r.ReviewedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, mapPQError(err)
	}
	r.RejectionReason = reason.String
	r.ReviewedBy = reviewedBy.String
	return &r, nil
}

func (s *PostgresStore) CreateVendorRequest(ctx context.Context, request *VendorRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = VendorRequestPending
	}
	query := `
		INSERT INTO vendor_requests (id, user_id, business_name, business_type, description, phone, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		request.ID, request.UserID, request.BusinessName, request.BusinessType,
		request.Description, request.Phone, request.Status,
	).Scan(&request.CreatedAt, &request.UpdatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) GetVendorRequest(ctx context.Context, id string) (*VendorRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM vendor_requests WHERE id = $1`, requestColumns)
	return scanRequest(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) GetVendorRequestByUser(ctx context.Context, userID string) (*VendorRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM vendor_requests WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, requestColumns)
	return scanRequest(s.db.QueryRowContext(ctx, query, userID))
}

func (s *PostgresStore) UpdateVendorRequest(ctx context.Context, request *VendorRequest) error {
	query := `
		UPDATE vendor_requests
		SET status = $2, rejection_reason = NULLIF($3, ''), reviewed_by = NULLIF($4, ''),
			reviewed_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		request.ID, request.Status, request.RejectionReason,
		request.ReviewedBy, request.ReviewedAt,
	).Scan(&request.UpdatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) ListVendorRequests(ctx context.Context, filter VendorRequestFilter) ([]*VendorRequest, int64, error) {
	where := []string{"TRUE"}
	args := []interface{}{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM vendor_requests WHERE %s", clause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, mapPQError(err)
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM vendor_requests WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		requestColumns, clause, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapPQError(err)
	}
	defer rows.Close()

	var requests []*VendorRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, r)
	}
	return requests, total, rows.Err()
}

const profileColumns = `id, user_id, business_name, business_type, description, phone,
	rating, rating_count, order_count, active, created_at, updated_at`

func scanProfile(row interface{ Scan(...interface{}) error }) (*VendorProfile, error) {
	var p VendorProfile
	err := row.Scan(
		&p.ID, &p.UserID, &p.BusinessName, &p.BusinessType, &p.Description, &p.Phone,
		&p.Rating, &p.RatingCount, &p.OrderCount, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapPQError(err)
	}
	return &p, nil
}

func (s *PostgresStore) CreateVendorProfile(ctx context.Context, profile *VendorProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	query := `
		INSERT INTO vendor_profiles (id, user_id, business_name, business_type, description, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		profile.ID, profile.UserID, profile.BusinessName, profile.BusinessType,
		profile.Description, profile.Phone, profile.Active,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) GetVendorProfile(ctx context.Context, id string) (*VendorProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM vendor_profiles WHERE id = $1`, profileColumns)
	return scanProfile(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) GetVendorProfileByUser(ctx context.Context, userID string) (*VendorProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM vendor_profiles WHERE user_id = $1`, profileColumns)
	return scanProfile(s.db.QueryRowContext(ctx, query, userID))
}

func (s *PostgresStore) UpdateVendorProfile(ctx context.Context, profile *VendorProfile) error {
	query := `
		UPDATE vendor_profiles
		SET business_name = $2, business_type = $3, description = $4, phone = $5,
			rating = $6, rating_count = $7, order_count = $8, active = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		profile.ID, profile.BusinessName, profile.BusinessType, profile.Description,
		profile.Phone, profile.Rating, profile.RatingCount, profile.OrderCount, profile.Active,
	).Scan(&profile.UpdatedAt)
	return mapPQError(err)
}

func (s *PostgresStore) DeleteVendorProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vendor_profiles WHERE id = $1`, id)
	if err != nil {
		return mapPQError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListVendorProfiles(ctx context.Context, filter VendorProfileFilter) ([]*VendorProfile, int64, error) {
	where := []string{"TRUE"}
	args := []interface{}{}

	if filter.ActiveOnly {
		where = append(where, "active = true")
	}
	if filter.BusinessType != "" {
		args = append(args, filter.BusinessType)
		where = append(where, fmt.Sprintf("LOWER(business_type) = LOWER($%d)", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(business_name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM vendor_profiles WHERE %s", clause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, mapPQError(err)
	}

	order := "created_at DESC"
	if filter.SortByRating {
		order = "rating DESC, created_at DESC"
	}
	page, limit := normalizePage(filter.Page, filter.Limit)
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM vendor_profiles WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		profileColumns, clause, order, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapPQError(err)
	}
	defer rows.Close()

	var profiles []*VendorProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		profiles = append(profiles, p)
	}
	return profiles, total, rows.Err()
}
