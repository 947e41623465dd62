package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	ierrors "github.com/resourcedb/resourcedb/kit/platform/errors"
)

const (
	// DefaultFilename is the name of the sqlite database file relative to the
	// configured data directory.
	DefaultFilename = "resourcedb.sqlite"

	// InmemPath opens a private in-memory database, used by tests.
	InmemPath = ":memory:"

	migrationsTableName = "migrations"
)

// SqlStore is a wrapper around the database connection shared by every
// component that persists to the relational store.
type SqlStore struct {
	Mu sync.RWMutex
	DB *sqlx.DB

	log  *zap.Logger
	path string
}

// NewSqlStore opens the database at path, creating the file if needed.
func NewSqlStore(path string, log *zap.Logger) (*SqlStore, error) {
	s := &SqlStore{
		log:  log,
		path: path,
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	log.Info("Resource SQL store ready")

	// sqlite allows exactly one writer. Constraining the pool to a single
	// connection makes the in-memory database usable from multiple
	// goroutines and serializes writers at the driver rather than failing
	// with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s.DB = db
	return s, nil
}

// Close the connection to the sqlite database.
func (s *SqlStore) Close() error {
	return s.DB.Close()
}

// Flush deletes all records for all tables except the migrations table. Used
// by tests to reset state between cases.
func (s *SqlStore) Flush(ctx context.Context) {
	tables, err := s.tableNames()
	if err != nil {
		s.log.Fatal("unable to flush sqlite", zap.Error(err))
	}

	for _, t := range tables {
		if t == migrationsTableName {
			continue
		}

		stmt := fmt.Sprintf("DELETE FROM %s", t)
		if err := s.execTrans(ctx, stmt); err != nil {
			s.log.Fatal("unable to flush sqlite", zap.Error(err))
		}
	}
	s.log.Debug("sqlite data flushed successfully")
}

// userVersion returns the sqlite user_version pragma, which tracks the
// migration level of the database.
func (s *SqlStore) userVersion() (int, error) {
	var v int
	if err := s.DB.Get(&v, "PRAGMA user_version"); err != nil {
		return 0, err
	}
	return v, nil
}

func (s *SqlStore) execTrans(ctx context.Context, stmt string) error {
	// use a lock to prevent two potential simultaneous write operations to
	// the database, which would throw an error
	s.Mu.Lock()
	defer s.Mu.Unlock()

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *SqlStore) tableNames() ([]string, error) {
	var names []string
	if err := s.DB.Select(&names, "SELECT name FROM sqlite_master WHERE type='table'"); err != nil {
		return nil, err
	}
	return names, nil
}

// queryToStrings is a test helper for querying a single string column.
func (s *SqlStore) queryToStrings(stmt string) ([]string, error) {
	var out []string
	if err := s.DB.Select(&out, stmt); err != nil {
		return nil, err
	}
	return out, nil
}

// IsUniqueConstraintError reports whether err is the driver's unique or
// primary key constraint violation, optionally constrained to the named
// table. The idempotency insert depends on this to turn a race loser into a
// duplicate result instead of an opaque failure.
func IsUniqueConstraintError(err error, table string) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	if serr.ExtendedCode != sqlite3.ErrConstraintUnique && serr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	if table == "" {
		return true
	}
	return strings.Contains(serr.Error(), table+".")
}

// ErrStore wraps a raw driver error as a transient storage error so callers
// can distinguish retryable failures from domain outcomes.
func ErrStore(err error) error {
	if err == nil {
		return nil
	}
	var coded *ierrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return &ierrors.Error{
		Code: ierrors.EUnavailable,
		Msg:  "storage failure",
		Err:  err,
	}
}
