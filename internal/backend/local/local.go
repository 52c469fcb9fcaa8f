// ABOUTME: Embedded SQLite implementation of the backend contract using modernc.org/sqlite
// ABOUTME: Runs the console without a hosted backend, with automatic schema creation

package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/safespace/safespace-admin/internal/auth"
	"github.com/safespace/safespace-admin/internal/backend"

	_ "modernc.org/sqlite"
)

// timeLayout sorts lexically, so time filters can compare stored text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const defaultSessionTTL = 24 * time.Hour

// ErrAdminNotFound is returned by PromoteSuperadmin when no admin row matches.
var ErrAdminNotFound = errors.New("admin not found")

// Options configures a Store.
type Options struct {
	DatabasePath  string
	StorageDir    string // object storage root, defaults to "objects" next to the database
	PublicBaseURL string // prefix for public object URLs, defaults to file:// URLs
	JWTSecret     []byte
	SessionTTL    time.Duration
	Sessions      backend.SessionStore
	Logger        *slog.Logger
}

// Store implements backend.Auth, backend.Rows, backend.Procedures and
// backend.Objects on a local SQLite database and directory tree.
type Store struct {
	db         *sql.DB
	logger     *slog.Logger
	tokens     *auth.JWTVerifier
	ttl        time.Duration
	sessions   backend.SessionStore
	storageDir string
	publicBase string
	now        func() time.Time
}

// Open creates a Store at opts.DatabasePath. The schema is automatically
// created if it doesn't exist. Parent directories are created if needed.
func Open(opts Options) (*Store, error) {
	if opts.DatabasePath == "" {
		return nil, errors.New("database path is required")
	}
	if len(opts.JWTSecret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "local-backend")

	dir := filepath.Dir(opts.DatabasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := opts.DatabasePath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = filepath.Join(dir, "objects")
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = backend.NewMemorySessionStore()
	}

	s := &Store{
		db:         db,
		logger:     logger,
		tokens:     auth.NewJWTVerifier(opts.JWTSecret),
		ttl:        ttl,
		sessions:   sessions,
		storageDir: storageDir,
		publicBase: strings.TrimRight(opts.PublicBaseURL, "/"),
		now:        time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("local backend initialized", "path", opts.DatabasePath, "storage", storageDir)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Backend returns the store as a backend.Client.
func (s *Store) Backend() *backend.Client {
	return &backend.Client{Auth: s, Identities: s, Rows: s, RPC: s, Storage: s}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// createSchema creates the database tables if they don't exist
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS auth_users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			metadata_json TEXT,
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS auth_sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			revoked_at TEXT,
			FOREIGN KEY (user_id) REFERENCES auth_users(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_auth_sessions_user ON auth_sessions(user_id);

		CREATE TABLE IF NOT EXISTS admins (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			full_name  TEXT,
			role       TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (role IN ('pending', 'moderator', 'superadmin', 'rejected'))
		);

		CREATE INDEX IF NOT EXISTS idx_admins_role ON admins(role);

		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL,
			full_name     TEXT,
			date_of_birth TEXT,
			phone_number  TEXT,
			status        TEXT NOT NULL DEFAULT 'active',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (status IN ('active', 'inactive', 'suspended'))
		);

		CREATE INDEX IF NOT EXISTS idx_users_created ON users(created_at);

		CREATE TABLE IF NOT EXISTS user_roles (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL UNIQUE,
			role       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (role IN ('patient', 'doctor', 'admin', 'superadmin'))
		);

		CREATE TABLE IF NOT EXISTS entertainments (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			title          TEXT NOT NULL,
			type           TEXT NOT NULL,
			description    TEXT,
			cover_img_url  TEXT,
			media_file_url TEXT,
			category       TEXT NOT NULL,
			mood_states    TEXT,
			status         TEXT NOT NULL DEFAULT 'active',
			dominant_state TEXT,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,

			CHECK (status IN ('active', 'inactive'))
		);

		CREATE TABLE IF NOT EXISTS doctors (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			name           TEXT NOT NULL,
			email          TEXT NOT NULL UNIQUE,
			phone          TEXT NOT NULL DEFAULT '',
			category       TEXT NOT NULL,
			profilepicture TEXT,
			dominant_state TEXT,
			created_at     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS doctor_registration_requests (
			id                         TEXT PRIMARY KEY,
			email                      TEXT NOT NULL,
			password                   TEXT,
			full_name                  TEXT NOT NULL,
			phone_number               TEXT,
			specialization             TEXT NOT NULL,
			years_experience           INTEGER,
			license_number             TEXT,
			city                       TEXT,
			address_line_1             TEXT,
			address_line_2             TEXT,
			postal_code                TEXT,
			license_document_url       TEXT,
			qualification_document_url TEXT,
			status                     TEXT NOT NULL DEFAULT 'pending',
			rejection_reason           TEXT,
			submitted_at               TEXT NOT NULL,
			reviewed_at                TEXT,
			reviewed_by                TEXT,

			CHECK (status IN ('pending', 'approved', 'rejected'))
		);

		CREATE INDEX IF NOT EXISTS idx_doctor_requests_submitted ON doctor_registration_requests(submitted_at DESC);

		CREATE TABLE IF NOT EXISTS audit_logs (
			id         TEXT PRIMARY KEY,
			admin_id   TEXT,
			action     TEXT NOT NULL,
			table_name TEXT NOT NULL,
			record_id  TEXT NOT NULL,
			changes    TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_record ON audit_logs(table_name, record_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// PromoteSuperadmin makes the admin with the given email a superadmin. It is
// how a fresh local database gets its first approver.
func (s *Store) PromoteSuperadmin(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE admins SET role = 'superadmin', updated_at = ? WHERE email = ? COLLATE NOCASE",
		s.timestamp(), email,
	)
	if err != nil {
		return fmt.Errorf("promoting admin: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrAdminNotFound
	}
	s.logger.Info("promoted admin to superadmin", "email", email)
	return nil
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}

// constraintError maps SQLite constraint failures to backend errors.
func constraintError(err error) error {
	switch {
	case isUniqueConstraintError(err):
		return &backend.Error{Status: 409, Code: backend.CodeUniqueViolation, Message: "duplicate key value violates unique constraint", Details: err.Error()}
	case isCheckConstraintError(err):
		return &backend.Error{Status: 400, Code: backend.CodeCheckViolation, Message: "new row violates check constraint", Details: err.Error()}
	}
	return err
}
