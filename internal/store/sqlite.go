package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"botrelay/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	credential_ref TEXT NOT NULL UNIQUE,
	owner_ref      TEXT NOT NULL,
	welcome_text   TEXT NOT NULL DEFAULT '',
	mode           TEXT NOT NULL,
	status         TEXT NOT NULL,
	message_count  INTEGER NOT NULL DEFAULT 0,
	quota_limit    INTEGER NOT NULL DEFAULT 0,
	expires_at     INTEGER,
	last_error     TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(mode, status, expires_at);
`

const sessionColumns = `id, credential_ref, owner_ref, welcome_text, mode, status,
	message_count, quota_limit, expires_at, last_error, created_at, updated_at`

// SQLite stores sessions in a single table. Timestamps are unix milliseconds.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("missing sqlite path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// sqlite serializes writers anyway; one connection also keeps
	// ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init schema")
	}
	return &SQLite{db: db}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var (
		sess      model.Session
		mode      string
		status    string
		expiresAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&sess.ID, &sess.CredentialRef, &sess.OwnerRef, &sess.WelcomeText, &mode, &status,
		&sess.MessageCount, &sess.QuotaLimit, &expiresAt, &sess.LastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Session{}, err
	}
	sess.Mode = model.Mode(mode)
	sess.Status = model.Status(status)
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64).UTC()
		sess.ExpiresAt = &t
	}
	sess.CreatedAt = time.UnixMilli(createdAt).UTC()
	sess.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return sess, nil
}

func (s *SQLite) queryOne(ctx context.Context, where string, arg any) (model.Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE "+where, arg)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, model.ErrNotFound
	}
	if err != nil {
		return model.Session{}, errors.Wrap(err, "select session")
	}
	return sess, nil
}

func (s *SQLite) queryMany(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select sessions")
	}
	defer rows.Close()

	result := make([]model.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		result = append(result, sess)
	}
	return result, errors.Wrap(rows.Err(), "iterate sessions")
}

func (s *SQLite) Get(ctx context.Context, id string) (model.Session, error) {
	return s.queryOne(ctx, "id = ?", id)
}

func (s *SQLite) FindByCredential(ctx context.Context, credentialRef string) (model.Session, error) {
	return s.queryOne(ctx, "credential_ref = ?", credentialRef)
}

func (s *SQLite) Put(ctx context.Context, sess model.Session) error {
	if sess.ID == "" {
		return errors.New("missing session id")
	}
	var expiresAt sql.NullInt64
	if sess.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: sess.ExpiresAt.UnixMilli(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	credential_ref = excluded.credential_ref,
	owner_ref      = excluded.owner_ref,
	welcome_text   = excluded.welcome_text,
	mode           = excluded.mode,
	status         = excluded.status,
	message_count  = excluded.message_count,
	quota_limit    = excluded.quota_limit,
	expires_at     = excluded.expires_at,
	last_error     = excluded.last_error,
	updated_at     = excluded.updated_at`,
		sess.ID, sess.CredentialRef, sess.OwnerRef, sess.WelcomeText, string(sess.Mode), string(sess.Status),
		sess.MessageCount, sess.QuotaLimit, expiresAt, sess.LastError,
		sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return model.ErrDuplicateCredential
		}
		return errors.Wrap(err, "upsert session")
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "delete session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete session")
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]model.Session, error) {
	return s.queryMany(ctx, "SELECT "+sessionColumns+" FROM sessions ORDER BY created_at DESC, id ASC")
}

func (s *SQLite) ListExpired(ctx context.Context, now time.Time) ([]model.Session, error) {
	return s.queryMany(ctx, "SELECT "+sessionColumns+` FROM sessions
WHERE mode = ? AND status = ? AND expires_at IS NOT NULL AND expires_at < ?
ORDER BY created_at DESC, id ASC`,
		string(model.ModeAuthorized), string(model.StatusRunning), now.UnixMilli())
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
