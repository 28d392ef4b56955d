package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrConflict is returned by the repositories when a compare-on-write update
// finds the stored record newer than the caller's version token.
var ErrConflict = errors.New("conflict")

// ErrStoreUnavailable wraps I/O failures of the record store. Callers may
// retry the whole operation from scratch; row updates are atomic.
var ErrStoreUnavailable = errors.New("record store unavailable")

const (
	EntityIncidents = "incidents"
	EntityCases     = "cases"
)

// Record is one positioned row of an entity table: a flat set of named string
// columns. List-valued fields travel as JSON strings inside the record; only
// this layer and the repositories ever see that encoding.
type Record struct {
	Pos    int64
	ID     string
	Fields map[string]string
}

// RecordStore is the durable row storage for Incident and Case records:
// lookup, full scan, append, and positional update. It holds no business
// logic and is the sole source of truth; nothing is cached across calls.
type RecordStore interface {
	Get(ctx context.Context, entity, id string) (*Record, error)
	List(ctx context.Context, entity string) ([]Record, error)
	Append(ctx context.Context, entity string, rec *Record) error
	UpdateAt(ctx context.Context, entity string, pos int64, rec *Record) error
}

type recordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) RecordStore {
	return &recordStore{db: db}
}

func tableFor(entity string) (string, error) {
	switch entity {
	case EntityIncidents:
		return "incident_records", nil
	case EntityCases:
		return "case_records", nil
	}
	return "", fmt.Errorf("unknown entity %q", entity)
}

func (s *recordStore) Get(ctx context.Context, entity, id string) (*Record, error) {
	table, err := tableFor(entity)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT pos, record_id, payload FROM `+table+` WHERE record_id=?`, id)
	var rec Record
	var payload string
	if err := row.Scan(&rec.Pos, &rec.ID, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := json.Unmarshal([]byte(payload), &rec.Fields); err != nil {
		return nil, fmt.Errorf("%w: decode record %s: %v", ErrStoreUnavailable, id, err)
	}
	return &rec, nil
}

func (s *recordStore) List(ctx context.Context, entity string) ([]Record, error) {
	table, err := tableFor(entity)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT pos, record_id, payload FROM `+table+` ORDER BY pos ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		var payload string
		if err := rows.Scan(&rec.Pos, &rec.ID, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Fields); err != nil {
			return nil, fmt.Errorf("%w: decode record %s: %v", ErrStoreUnavailable, rec.ID, err)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res, nil
}

func (s *recordStore) Append(ctx context.Context, entity string, rec *Record) error {
	table, err := tableFor(entity)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO `+table+`(record_id, payload) VALUES(?,?)`, rec.ID, string(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	pos, _ := res.LastInsertId()
	rec.Pos = pos
	return nil
}

func (s *recordStore) UpdateAt(ctx context.Context, entity string, pos int64, rec *Record) error {
	table, err := tableFor(entity)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET record_id=?, payload=? WHERE pos=?`, rec.ID, string(payload), pos)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: no record at position %d", ErrStoreUnavailable, pos)
	}
	rec.Pos = pos
	return nil
}
