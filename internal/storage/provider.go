// Package storage implements the data-layer contracts the application is
// allowed to use: every tenant read and write goes through one of three
// remote procedures.
package storage

import (
	"context"
	"fmt"

	"github.com/starford/tenantdesk/internal/models"
)

// Names of the remote procedures.
const (
	FuncFetchRecords  = "get_object_records_with_references"
	FuncUpdateRecord  = "update_tenant_record"
	FuncTenantObjects = "get_tenant_objects"
)

// Provider is the interface for tenant-scoped record operations.
type Provider interface {
	// FetchObjectRecords returns one page of records of the object identified
	// by objectID (an id or a logical name).
	FetchObjectRecords(ctx context.Context, tenantID, objectID string, limit, offset int) ([]models.Record, error)
	// UpdateRecord merges patch into the record recordID of tableName.
	UpdateRecord(ctx context.Context, tenantID, tableName, recordID string, patch models.Fields) error
	// ListTenantObjects returns the tenant's object catalog.
	ListTenantObjects(ctx context.Context, tenantID string) ([]models.ObjectInfo, error)
}

// RPCError is the structured error raised by a remote procedure.
type RPCError struct {
	Function string `json:"function,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Function, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Function, e.Message)
}
