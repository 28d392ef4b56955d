package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"kestrel-dcr/config"
	"kestrel-dcr/core/utils"
)

// NewDB opens (creating if needed) the sqlite database backing the record
// store and the service audit log.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	if cfg == nil || cfg.DBPath == "" {
		return nil, fmt.Errorf("db path not configured")
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := cfg.DBPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Printf("DB open %s", cfg.DBPath)
	return db, nil
}
