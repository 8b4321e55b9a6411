package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type failingBeginner struct{ err error }

func (b failingBeginner) Begin(context.Context) (pgx.Tx, error) { return nil, b.err }

func TestRPCError_FromPgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42501", Message: "permission denied", Detail: "tenant mismatch", Hint: "check tenant"}
	err := rpcError(FuncUpdateRecord, fmt.Errorf("exec: %w", pgErr))

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != "42501" || rpcErr.Message != "permission denied" {
		t.Errorf("code/message = %q/%q", rpcErr.Code, rpcErr.Message)
	}
	if rpcErr.Details != "tenant mismatch" || rpcErr.Hint != "check tenant" {
		t.Errorf("details/hint = %q/%q", rpcErr.Details, rpcErr.Hint)
	}
	if rpcErr.Function != FuncUpdateRecord {
		t.Errorf("function = %q", rpcErr.Function)
	}
}

func TestRPCError_Plain(t *testing.T) {
	err := rpcError(FuncFetchRecords, errors.New("connection refused"))
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError")
	}
	if rpcErr.Code != "" || rpcErr.Message != "connection refused" {
		t.Errorf("unexpected %+v", rpcErr)
	}
	if got := rpcErr.Error(); got != "get_object_records_with_references: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}

func TestPostgres_BeginFailureWrapped(t *testing.T) {
	s := NewPostgres(failingBeginner{err: errors.New("pool closed")})
	ctx := context.Background()

	if _, err := s.FetchObjectRecords(ctx, "t1", "drafts", 1000, 0); err == nil {
		t.Error("expected fetch error")
	}
	if err := s.UpdateRecord(ctx, "t1", "clients__a", "c1", nil); err == nil {
		t.Error("expected update error")
	}
	_, err := s.ListTenantObjects(ctx, "t1")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Function != FuncTenantObjects {
		t.Errorf("expected RPCError from %s, got %v", FuncTenantObjects, err)
	}
}
