package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/tenantdesk/internal/models"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS tenant_objects (
	tenant_id TEXT NOT NULL,
	id        TEXT NOT NULL,
	name      TEXT NOT NULL,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS tenant_records (
	tenant_id   TEXT NOT NULL,
	object_id   TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	record_data TEXT NOT NULL DEFAULT '{}',
	updated_by  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (tenant_id, record_id)
);

CREATE INDEX IF NOT EXISTS idx_tenant_records_object ON tenant_records(tenant_id, object_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tenant_objects_name ON tenant_objects(tenant_id, name);
`

// SQLite implements Provider on a local database file. It mirrors the
// behaviour of the remote procedures closely enough for local development
// and tests; production deployments use Postgres.
type SQLite struct {
	conn *sql.DB
}

var _ Provider = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	if _, err := conn.Exec(sqliteSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// CreateObject registers an object in the tenant catalog.
func (s *SQLite) CreateObject(ctx context.Context, tenantID, id, name string) error {
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO tenant_objects (tenant_id, id, name) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET name = excluded.name
	`, tenantID, id, name)
	if err != nil {
		return fmt.Errorf("storage: create object: %w", err)
	}
	return nil
}

// InsertRecord adds a record to an object and returns its id. A new id is
// generated when recordID is empty.
func (s *SQLite) InsertRecord(ctx context.Context, tenantID, objectID, recordID string, data models.Fields) (string, error) {
	if recordID == "" {
		recordID = uuid.NewString()
	}
	if data == nil {
		data = models.Fields{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("storage: encode record: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO tenant_records (tenant_id, object_id, record_id, record_data)
		VALUES (?, ?, ?, ?)
	`, tenantID, objectID, recordID, string(payload))
	if err != nil {
		return "", fmt.Errorf("storage: insert record: %w", err)
	}
	return recordID, nil
}

// FetchObjectRecords matches objectID against the catalog id, the name, or
// the name with the "__a" suffix.
func (s *SQLite) FetchObjectRecords(ctx context.Context, tenantID, objectID string, limit, offset int) ([]models.Record, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT r.record_id, r.object_id, r.record_data
		FROM tenant_records r
		JOIN tenant_objects o ON o.tenant_id = r.tenant_id AND o.id = r.object_id
		WHERE r.tenant_id = ?
		  AND (o.id = ? OR o.name = ? OR o.name = ? || '__a')
		ORDER BY r.created_at, r.record_id
		LIMIT ? OFFSET ?
	`, tenantID, objectID, objectID, objectID, limit, offset)
	if err != nil {
		return nil, &RPCError{Function: FuncFetchRecords, Message: err.Error()}
	}
	defer rows.Close()

	out := []models.Record{}
	for rows.Next() {
		var rec models.Record
		var payload string
		if err := rows.Scan(&rec.ID, &rec.ObjectID, &payload); err != nil {
			return nil, &RPCError{Function: FuncFetchRecords, Message: err.Error()}
		}
		if err := json.Unmarshal([]byte(payload), &rec.Data); err != nil {
			return nil, &RPCError{Function: FuncFetchRecords, Message: "corrupt record_data", Details: err.Error()}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &RPCError{Function: FuncFetchRecords, Message: err.Error()}
	}
	return out, nil
}

// UpdateRecord merges patch into the stored payload. The "updated_by" key is
// moved to its own column.
func (s *SQLite) UpdateRecord(ctx context.Context, tenantID, tableName, recordID string, patch models.Fields) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return &RPCError{Function: FuncUpdateRecord, Message: err.Error()}
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var payload, updatedBy string
	err = tx.QueryRowContext(ctx, `
		SELECT r.record_data, r.updated_by
		FROM tenant_records r
		JOIN tenant_objects o ON o.tenant_id = r.tenant_id AND o.id = r.object_id
		WHERE r.tenant_id = ? AND r.record_id = ? AND (o.name = ? OR o.id = ?)
	`, tenantID, recordID, tableName, tableName).Scan(&payload, &updatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return &RPCError{
			Function: FuncUpdateRecord,
			Code:     "P0002",
			Message:  "record not found",
			Details:  fmt.Sprintf("table %s has no record %s for tenant", tableName, recordID),
		}
	}
	if err != nil {
		return &RPCError{Function: FuncUpdateRecord, Message: err.Error()}
	}

	data := models.Fields{}
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return &RPCError{Function: FuncUpdateRecord, Message: "corrupt record_data", Details: err.Error()}
	}
	for k, v := range patch {
		if k == models.KeyUpdatedBy {
			if by, ok := v.(string); ok {
				updatedBy = by
			}
			continue
		}
		data[k] = v
	}
	merged, err := json.Marshal(data)
	if err != nil {
		return &RPCError{Function: FuncUpdateRecord, Code: "22P02", Message: "invalid update data", Details: err.Error()}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tenant_records
		SET record_data = ?, updated_by = ?, updated_at = ?
		WHERE tenant_id = ? AND record_id = ?
	`, string(merged), updatedBy, time.Now().UTC(), tenantID, recordID)
	if err != nil {
		return &RPCError{Function: FuncUpdateRecord, Message: err.Error()}
	}
	if err := tx.Commit(); err != nil {
		return &RPCError{Function: FuncUpdateRecord, Message: err.Error()}
	}
	return nil
}

// ListTenantObjects returns the catalog ordered by name.
func (s *SQLite) ListTenantObjects(ctx context.Context, tenantID string) ([]models.ObjectInfo, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name FROM tenant_objects WHERE tenant_id = ? ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, &RPCError{Function: FuncTenantObjects, Message: err.Error()}
	}
	defer rows.Close()

	out := []models.ObjectInfo{}
	for rows.Next() {
		var o models.ObjectInfo
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, &RPCError{Function: FuncTenantObjects, Message: err.Error()}
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, &RPCError{Function: FuncTenantObjects, Message: err.Error()}
	}
	return out, nil
}

// UpdatedBy returns the audit column of a record.
func (s *SQLite) UpdatedBy(ctx context.Context, tenantID, recordID string) (string, error) {
	var by string
	err := s.conn.QueryRowContext(ctx, `
		SELECT updated_by FROM tenant_records WHERE tenant_id = ? AND record_id = ?
	`, tenantID, recordID).Scan(&by)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("storage: record %s: %w", recordID, sql.ErrNoRows)
	}
	return by, err
}
