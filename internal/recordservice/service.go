// Package recordservice coordinates record reads and updates with the
// draft approval workflow and change notifications.
package recordservice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tenantdesk/internal/apperr"
	"github.com/starford/tenantdesk/internal/approval"
	"github.com/starford/tenantdesk/internal/checksum"
	"github.com/starford/tenantdesk/internal/fields"
	"github.com/starford/tenantdesk/internal/models"
	"github.com/starford/tenantdesk/internal/sse"
	"github.com/starford/tenantdesk/internal/storage"
)

// Paging bounds for ListRecords.
const (
	DefaultLimit = 100
	MaxLimit     = approval.FetchLimit
)

// Publisher receives record change notifications.
type Publisher interface {
	PublishRecordEvent(models.RecordEvent)
}

// Column is a record key with its display label.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// RecordList is one page of an object's records.
type RecordList struct {
	TenantID string          `json:"tenant_id"`
	ObjectID string          `json:"object_id"`
	Records  []models.Record `json:"records"`
	Columns  []Column        `json:"columns"`
	Checksum string          `json:"checksum"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// FieldValue is a field read through the resolver.
type FieldValue struct {
	RecordID string `json:"record_id"`
	Field    string `json:"field"`
	Label    string `json:"label"`
	Found    bool   `json:"found"`
	Value    any    `json:"value"`
	Display  string `json:"display"`
}

// UpdateOutcome is the result of UpdateRecord. Approval is set only when the
// update approved a draft.
type UpdateOutcome struct {
	Updated  bool             `json:"updated"`
	Approval *approval.Result `json:"approval,omitempty"`
}

// Service coordinates the store, the propagator and notifications.
type Service struct {
	store  storage.Provider
	prop   *approval.Propagator
	events Publisher
	logger *slog.Logger
}

// NewService creates a record service. events may be nil.
func NewService(store storage.Provider, prop *approval.Propagator, events Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, prop: prop, events: events, logger: logger}
}

// ListObjects returns the tenant's object catalog.
func (s *Service) ListObjects(ctx context.Context, tenantID string) ([]models.ObjectInfo, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return s.store.ListTenantObjects(ctx, tenantID)
}

// ListRecords returns a page of records with the union of their keys as
// labelled columns.
func (s *Service) ListRecords(ctx context.Context, tenantID, objectID string, limit, offset int) (*RecordList, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	recs, err := s.store.FetchObjectRecords(ctx, tenantID, objectID, limit, offset)
	if err != nil {
		return nil, err
	}
	sum, err := checksum.JSON(recs)
	if err != nil {
		return nil, fmt.Errorf("recordservice: checksum: %w", err)
	}
	return &RecordList{
		TenantID: tenantID,
		ObjectID: objectID,
		Records:  recs,
		Columns:  Columns(recs),
		Checksum: sum,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// Columns returns every key present in recs, sorted, with its label.
func Columns(recs []models.Record) []Column {
	seen := make(map[string]struct{})
	for _, r := range recs {
		for k := range r.Data {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Column, len(keys))
	for i, k := range keys {
		out[i] = Column{Key: k, Label: fields.FormatColumnLabel(k)}
	}
	return out
}

// GetField reads a logical field of one record through the field resolver.
func (s *Service) GetField(ctx context.Context, tenantID, objectID, recordID, field string) (*FieldValue, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	rec, err := s.findRecord(ctx, tenantID, objectID, recordID)
	if err != nil {
		return nil, err
	}
	v, ok := fields.Resolve(rec.Data, field)
	return &FieldValue{
		RecordID: recordID,
		Field:    field,
		Label:    fields.FormatColumnLabel(field),
		Found:    ok,
		Value:    v,
		Display:  fields.DisplayValue(rec.Data, field, nil),
	}, nil
}

// UpdateRecord applies a partial update, then runs draft approval when the
// update approves a draft.
func (s *Service) UpdateRecord(ctx context.Context, tenantID, objectID, recordID, userID string, req models.UpdateRequest) (*UpdateOutcome, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Fields, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("recordservice: %w: %w", apperr.ErrInvalidInput, err)
	}

	table := req.TableName
	if table == "" {
		var err error
		if table, err = s.tableName(ctx, tenantID, objectID); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateRecord(ctx, tenantID, table, recordID, req.Fields); err != nil {
		s.logger.Warn("record update failed",
			slog.String("tenant_id", tenantID),
			slog.String("object_id", objectID),
			slog.String("record_id", recordID),
			slog.String("error", err.Error()))
		return nil, err
	}
	s.publish(sse.TypeRecordUpdated, tenantID, objectID, recordID)

	out := &UpdateOutcome{Updated: true}
	if s.prop.ShouldTriggerDraftApproval(ctx, objectID, req.Fields, tenantID) {
		res := s.ApproveDraft(ctx, tenantID, objectID, recordID, userID)
		out.Approval = &res
	}
	return out, nil
}

// ApproveDraft runs the approval workflow for a draft looked up by id.
func (s *Service) ApproveDraft(ctx context.Context, tenantID, objectID, recordID, userID string) approval.Result {
	res := s.prop.HandleDraftApproval(ctx, recordID, tenantID, userID, objectID)
	if res.Success {
		s.publish(sse.TypeDraftApproved, tenantID, objectID, recordID)
	}
	return res
}

// VerifyObserver returns a propagator observer publishing found clients as
// client.verified events.
func VerifyObserver(events Publisher) func(approval.VerifyReport) {
	return func(r approval.VerifyReport) {
		if events == nil || !r.Found {
			return
		}
		events.PublishRecordEvent(models.RecordEvent{
			Kind:     sse.TypeClientVerified,
			TenantID: r.TenantID,
			RecordID: r.ClientID,
		})
	}
}

func (s *Service) findRecord(ctx context.Context, tenantID, objectID, recordID string) (*models.Record, error) {
	recs, err := s.store.FetchObjectRecords(ctx, tenantID, objectID, approval.FetchLimit, 0)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].ID == recordID {
			return &recs[i], nil
		}
	}
	return nil, fmt.Errorf("recordservice: record %s: %w", recordID, apperr.ErrNotFound)
}

// tableName resolves the catalog name of objectID.
func (s *Service) tableName(ctx context.Context, tenantID, objectID string) (string, error) {
	objects, err := s.store.ListTenantObjects(ctx, tenantID)
	if err != nil {
		return "", err
	}
	for _, o := range objects {
		if o.ID == objectID {
			if name := o.LogicalName(); name != "" {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("recordservice: object %s: %w", objectID, apperr.ErrNotFound)
}

func (s *Service) publish(kind, tenantID, objectID, recordID string) {
	if s.events == nil {
		return
	}
	s.events.PublishRecordEvent(models.RecordEvent{
		Kind:     kind,
		TenantID: tenantID,
		ObjectID: objectID,
		RecordID: recordID,
	})
}

func requireTenant(tenantID string) error {
	if err := validation.Validate(tenantID, validation.Required); err != nil {
		return fmt.Errorf("recordservice: tenant id: %w", apperr.ErrInvalidInput)
	}
	return nil
}
