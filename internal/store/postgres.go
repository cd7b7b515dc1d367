package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"arena/sync/internal/util"
)

// PostgresStore keeps every collection in a single JSONB-backed table.
// Per-document upserts are the only atomic primitive; cross-document
// invariants are reconciled by the idempotent rebuild/reindex scans.
type PostgresStore struct {
	db   *sql.DB
	sink EventSink
}

// NewPostgresStore wraps db. When sink is non-nil, every write publishes
// a change event after it commits; a publish failure is logged but never
// fails the write that already happened.
func NewPostgresStore(db *sql.DB, sink EventSink) *PostgresStore {
	return &PostgresStore{db: db, sink: sink}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection=$1 AND id=$2`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return Doc{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return Doc{ID: id, Fields: fields}, nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]Doc, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection=$1`)
	args := []any{collection}

	for _, where := range q.Wheres {
		predicate, err := json.Marshal(map[string]any{where.Field: where.Value})
		if err != nil {
			return nil, fmt.Errorf("encode predicate %s: %w", where.Field, err)
		}
		args = append(args, string(predicate))
		sb.WriteString(` AND data @> $` + strconv.Itoa(len(args)) + `::jsonb`)
	}

	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		sb.WriteString(` ORDER BY data->>$` + strconv.Itoa(len(args)))
		if q.Desc {
			sb.WriteString(` DESC`)
		}
	} else {
		sb.WriteString(` ORDER BY id`)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	items := make([]Doc, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		items = append(items, Doc{ID: id, Fields: fields})
	}
	return items, rows.Err()
}

func (s *PostgresStore) Add(ctx context.Context, collection string, fields map[string]any) (Ref, error) {
	id := util.NewID()
	if err := s.write(ctx, collection, id, fields, false); err != nil {
		return Ref{}, err
	}
	return Ref{Collection: collection, ID: id}, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.write(ctx, collection, id, fields, false)
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.write(ctx, collection, id, fields, true)
}

// write upserts one document. merge folds fields into the existing data
// instead of replacing it. The previous value is read in the same
// transaction so the emitted event carries a consistent before snapshot.
func (s *PostgresStore) write(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	if err := checkFields(fields); err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write %s/%s: %w", collection, id, err)
	}
	defer tx.Rollback()

	var before map[string]any
	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`,
		collection, id).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// creation
	case err != nil:
		return fmt.Errorf("read before %s/%s: %w", collection, id, err)
	default:
		if before, err = decodeFields(raw); err != nil {
			return fmt.Errorf("decode before %s/%s: %w", collection, id, err)
		}
	}

	data := fields
	if merge && before != nil {
		data = make(map[string]any, len(before)+len(fields))
		for key, value := range before {
			data[key] = value
		}
		for key, value := range fields {
			data[key] = value
		}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data=EXCLUDED.data, updated_at=NOW()
	`, collection, id, encoded); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, collection, id, before, data)
	return nil
}

func (s *PostgresStore) publish(ctx context.Context, collection, id string, before, after map[string]any) {
	if s.sink == nil {
		return
	}
	kind := Update
	if before == nil {
		kind = Create
	}
	event := Event{Collection: collection, Kind: kind, ID: id, Before: before, After: after}
	if err := s.sink.Publish(ctx, event); err != nil {
		log.Printf("store: publish change event for %s/%s: %v", collection, id, err)
	}
}

func (s *PostgresStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func decodeFields(raw []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
