package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Statement names used by the repository.
const (
	stmtFindUserByLogin  = "find_user_by_login"
	stmtFetchAllUsers    = "fetch_all_users"
	stmtFetchStudentLink = "fetch_student_link"
)

var statements = map[string]string{
	stmtFindUserByLogin:  `SELECT user_id, login, password, type FROM site_user WHERE login = ?`,
	stmtFetchAllUsers:    `SELECT user_id, login, password, type FROM site_user ORDER BY user_id`,
	stmtFetchStudentLink: `SELECT user_id, student_id, full_name, class_num, class_letter FROM student WHERE user_id = ?`,
}

// PoolConfig bounds the sql.DB connection pool.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// DefaultPool suits a single SQLite file shared by one server process.
var DefaultPool = PoolConfig{MaxOpen: 8, MaxIdle: 4, MaxLifetime: 5 * time.Minute}

// DB is the user database: a SQLite handle plus the prepared lookups.
type DB struct {
	*sql.DB
	path     string
	poolCfg  PoolConfig
	prepared map[string]*sql.Stmt
	mu       sync.RWMutex
}

// Open connects to the SQLite file at dbPath without touching the schema.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: sqlDB, path: dbPath, prepared: make(map[string]*sql.Stmt)}
	db.applyPool(DefaultPool)
	return db, nil
}

// NewDB opens the database, applies pending migrations and prepares the lookups.
func NewDB(dbPath string) (*DB, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := db.prepare(); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("Database initialized", "path", dbPath, "max_open_conns", db.poolCfg.MaxOpen)
	return db, nil
}

func (db *DB) applyPool(cfg PoolConfig) {
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.poolCfg = cfg
}

func (db *DB) prepare() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt
	}
	return nil
}

func (db *DB) stmt(name string) (*sql.Stmt, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stmt, ok := db.prepared[name]
	if !ok {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}
	return stmt, nil
}

// GetPoolStats reports the connection pool state for the metrics endpoint.
func (db *DB) GetPoolStats() map[string]interface{} {
	stats := db.Stats()
	return map[string]interface{}{
		"path":                 db.path,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": db.poolCfg.MaxOpen,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// Close releases the prepared statements and the connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
