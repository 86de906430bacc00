package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	LogSQL       bool
}

// Connect opens MySQL, or SQLite when the DSN starts with "sqlite:" or
// "file:" or ends in ".db".
func Connect(opts Options) (*gorm.DB, error) {
	dialector, err := dialectorFor(opts.DSN)
	if err != nil {
		return nil, err
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if opts.LogSQL {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}
	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return gdb, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("db dsn is required")
	case strings.HasPrefix(dsn, "sqlite:"):
		path := strings.TrimPrefix(dsn, "sqlite:")
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		return sqlite.Open(path), nil
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn), nil
	case strings.HasSuffix(dsn, ".db"):
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	default:
		return mysql.Open(dsn), nil
	}
}

// ensureDir creates the directory of a plain SQLite file path.
func ensureDir(path string) error {
	if path == "" || path == ":memory:" || strings.Contains(path, "?") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	return nil
}

// Migrate creates or updates the tables for the given models.
func Migrate(gdb *gorm.DB, models ...any) error {
	if err := gdb.AutoMigrate(models...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
