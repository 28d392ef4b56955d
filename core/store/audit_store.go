package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditEntry is one line of the service-level action trail. Distinct from the
// per-record change-logs: this table records who invoked which operation, not
// what the record became.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditStore interface {
	Log(ctx context.Context, actor, action, details string) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}

type auditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Log(ctx context.Context, actor, action, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(actor, action, details, created_at) VALUES(?,?,?,?)`,
		actor, action, details, time.Now().UTC().Format(recordTimeLayout))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *auditStore) List(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor, action, details, created_at FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var res []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if t, err := time.Parse(recordTimeLayout, createdAt); err == nil {
			e.CreatedAt = t.UTC()
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res, nil
}
