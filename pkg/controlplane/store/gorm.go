package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

// WAL journal, and a 5s wait on a locked database instead of SQLITE_BUSY.
const sqlitePragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// GORMStore is the Store backed by SQLite or PostgreSQL through GORM.
type GORMStore struct {
	db     *gorm.DB
	pool   *sql.DB
	config *Config
}

// New applies defaults to config, opens the database and migrates the
// schema. A nil config means the default SQLite file.
func New(config *Config) (*GORMStore, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	default:
		dsn, err := sqliteDSN(config.SQLite.Path)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(config.Type),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", config.Type, err)
	}
	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", config.Type, err)
	}

	switch {
	case config.Type == DatabaseTypePostgres:
		pool.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		pool.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	case config.SQLite.Path == memoryPath:
		// Each connection to :memory: is a separate, empty database.
		pool.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate %s database: %w", config.Type, err)
	}
	return &GORMStore{db: db, pool: pool, config: config}, nil
}

// sqliteDSN creates the parent directory of a file database and appends
// the pragmas.
func sqliteDSN(path string) (string, error) {
	if path == memoryPath {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create database directory: %w", err)
	}
	return path + sqlitePragmas, nil
}

// DB is the underlying GORM handle.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// isDuplicateKey matches unique violations from both backends. The message
// check covers driver versions that do not translate errors.
func isDuplicateKey(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
