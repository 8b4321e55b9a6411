package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starford/tenantdesk/internal/models"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres implements Provider by calling the data layer's stored functions.
// Each call runs in its own transaction scoped to the tenant.
type Postgres struct {
	pool pgBeginner
}

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return pool, nil
}

// NewPostgres creates a Provider over pool.
func NewPostgres(pool pgBeginner) *Postgres {
	return &Postgres{pool: pool}
}

var _ Provider = (*Postgres)(nil)

func (s *Postgres) withTenant(ctx context.Context, tenantID string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FetchObjectRecords calls get_object_records_with_references.
func (s *Postgres) FetchObjectRecords(ctx context.Context, tenantID, objectID string, limit, offset int) ([]models.Record, error) {
	var raw []byte
	err := s.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
		SELECT get_object_records_with_references(
		  p_object_id => $1,
		  p_tenant_id => $2,
		  p_limit     => $3,
		  p_offset    => $4
		)::jsonb
		`, objectID, tenantID, limit, offset).Scan(&raw)
	})
	if err != nil {
		return nil, rpcError(FuncFetchRecords, err)
	}
	return decodeRecords(raw)
}

// UpdateRecord calls update_tenant_record. The procedure returns void.
func (s *Postgres) UpdateRecord(ctx context.Context, tenantID, tableName, recordID string, patch models.Fields) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("storage: encode update data: %w", err)
	}
	err = s.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
		SELECT update_tenant_record(
		  p_table_name  => $1,
		  p_record_id   => $2,
		  p_tenant_id   => $3,
		  p_update_data => $4::jsonb
		)
		`, tableName, recordID, tenantID, data)
		return err
	})
	if err != nil {
		return rpcError(FuncUpdateRecord, err)
	}
	return nil
}

// ListTenantObjects calls get_tenant_objects.
func (s *Postgres) ListTenantObjects(ctx context.Context, tenantID string) ([]models.ObjectInfo, error) {
	var raw []byte
	err := s.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
		SELECT COALESCE(jsonb_agg(to_jsonb(o)), '[]'::jsonb)
		FROM get_tenant_objects(p_tenant_id => $1) AS o
		`, tenantID).Scan(&raw)
	})
	if err != nil {
		return nil, rpcError(FuncTenantObjects, err)
	}
	return decodeObjects(raw)
}

// rpcError converts a driver error into an RPCError, keeping the Postgres
// code, detail and hint when present.
func rpcError(function string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return &RPCError{
			Function: function,
			Code:     pgErr.Code,
			Message:  pgErr.Message,
			Details:  pgErr.Detail,
			Hint:     pgErr.Hint,
		}
	}
	return &RPCError{Function: function, Message: err.Error()}
}
