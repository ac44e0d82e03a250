// Package database stores decoded sightings in SQLite through gorm.
package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// pure Go driver, no CGO on the Pi
	"gorm.io/driver/sqlite"
	_ "modernc.org/sqlite"
)

const (
	// DefaultPath is used when no database path is configured
	DefaultPath = "pwn-scanner.db"

	defaultSlowQuery = 200 * time.Millisecond
)

// connection pragmas, applied by the driver to every pooled connection
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

// Config holds database configuration
type Config struct {
	Path      string
	SlowQuery time.Duration // queries slower than this are logged; 0 uses 200ms
}

// DB owns the sightings database
type DB struct {
	gorm *gorm.DB
	path string
	log  *logger.Logger
}

// NewDB opens (creating if needed) the database at cfg.Path and migrates
// the schema
func NewDB(cfg Config, log *logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("database")

	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	slow := cfg.SlowQuery
	if slow <= 0 {
		slow = defaultSlowQuery
	}

	g, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn(path)}, &gorm.Config{
		Logger: gormlogger.New(gormLogAdapter{log}, gormlogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	d := &DB{gorm: g, path: path, log: log}
	if err := d.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}

	log.Info("Database ready", logger.String("path", path))
	return d, nil
}

// dsn builds a modernc file URI carrying the connection pragmas
func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

func (d *DB) migrate() error {
	if err := d.gorm.AutoMigrate(&Sighting{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Path returns the database file location
func (d *DB) Path() string {
	return d.path
}

// Close releases the underlying connection pool
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB exposes the gorm handle for ad-hoc queries
func (d *DB) GetDB() *gorm.DB {
	return d.gorm
}

// Sightings returns a repository bound to this database
func (d *DB) Sightings() *SightingRepository {
	return NewSightingRepository(d.gorm)
}

// gormLogAdapter routes gorm's printf logging into ours
type gormLogAdapter struct {
	log *logger.Logger
}

func (l gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}
