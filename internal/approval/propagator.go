package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/tenantdesk/internal/models"
	"github.com/starford/tenantdesk/internal/storage"
)

const (
	// DefaultDraftsObjectID is used when HandleDraftApproval gets no object id.
	DefaultDraftsObjectID = "drafts"
	// DefaultClientsObjectID is the object re-fetched by the verification step.
	DefaultClientsObjectID = "clients"
	// ClientsTable is the destination table of update-record.
	ClientsTable = "clients__a"
	// FetchLimit is the single page scanned when looking a record up by id.
	// Records beyond it are not found.
	FetchLimit = 1000
)

// VerifyReport is the outcome of the post-update re-fetch. It never affects
// the propagation result.
type VerifyReport struct {
	TenantID string
	ClientID string
	Found    bool
	Data     models.Fields
	Err      error
}

// Propagator copies approved draft data onto client records.
type Propagator struct {
	store           storage.Provider
	logger          *slog.Logger
	clientsObjectID string
	onVerify        func(VerifyReport)
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Propagator) { p.logger = l }
}

// WithClientsObjectID sets the object id used to verify client updates.
func WithClientsObjectID(id string) Option {
	return func(p *Propagator) {
		if id != "" {
			p.clientsObjectID = id
		}
	}
}

// WithVerifyObserver registers fn to receive every verification report.
func WithVerifyObserver(fn func(VerifyReport)) Option {
	return func(p *Propagator) { p.onVerify = fn }
}

// New creates a Propagator over store.
func New(store storage.Provider, opts ...Option) *Propagator {
	p := &Propagator{
		store:           store,
		logger:          slog.Default(),
		clientsObjectID: DefaultClientsObjectID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CopyDraftDataToClient writes the scope, address and status of an approved
// draft onto the client it references. userID, when non-empty, is recorded
// as the acting user.
func (p *Propagator) CopyDraftDataToClient(ctx context.Context, draft models.DraftRecord, tenantID, userID string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("copy draft to client panicked",
				slog.String("tenant_id", tenantID),
				slog.String("record_id", draft.RecordID),
				slog.Any("panic", r))
			res = failed(MsgCopyFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	plan, guard := PlanPropagation(draft, userID)
	if !guard.Allowed {
		p.logger.Info("draft propagation skipped",
			slog.String("tenant_id", tenantID),
			slog.String("record_id", draft.RecordID),
			slog.String("reason", guard.Reason))
		return skipped(guard.Reason)
	}

	if err := p.store.UpdateRecord(ctx, tenantID, ClientsTable, plan.ClientID, plan.Update.Fields()); err != nil {
		p.logger.Warn("client update failed",
			slog.String("tenant_id", tenantID),
			slog.String("record_id", draft.RecordID),
			slog.String("client_id", plan.ClientID),
			slog.String("error", err.Error()))
		return failed(fmt.Sprintf(msgUpdateFailedFn, errorMessage(err)), err)
	}

	p.verify(ctx, tenantID, plan.ClientID)

	p.logger.Info("draft data copied to client",
		slog.String("tenant_id", tenantID),
		slog.String("record_id", draft.RecordID),
		slog.String("client_id", plan.ClientID),
		slog.Any("copied_fields", plan.CopiedFields))

	return Result{
		Success:      true,
		Message:      fmt.Sprintf("Successfully copied %s from draft to client!", strings.Join(plan.CopiedFields, " and ")),
		CopiedFields: plan.CopiedFields,
	}
}

// HandleDraftApproval looks the draft up by id in the first FetchLimit
// records of objectID (DefaultDraftsObjectID when empty) and propagates it.
func (p *Propagator) HandleDraftApproval(ctx context.Context, draftRecordID, tenantID, userID, objectID string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handle draft approval panicked",
				slog.String("tenant_id", tenantID),
				slog.String("record_id", draftRecordID),
				slog.Any("panic", r))
			res = failed(MsgHandleFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	if objectID == "" {
		objectID = DefaultDraftsObjectID
	}

	records, err := p.store.FetchObjectRecords(ctx, tenantID, objectID, FetchLimit, 0)
	if err != nil {
		p.logger.Warn("fetch draft records failed",
			slog.String("tenant_id", tenantID),
			slog.String("object_id", objectID),
			slog.String("error", err.Error()))
		return failed(MsgFetchFailed, err)
	}

	for _, rec := range records {
		if rec.ID == draftRecordID {
			return p.CopyDraftDataToClient(ctx, models.DraftFromFields(draftRecordID, rec.Data), tenantID, userID)
		}
	}

	attrs := []any{
		slog.String("tenant_id", tenantID),
		slog.String("object_id", objectID),
		slog.String("record_id", draftRecordID),
	}
	if len(records) >= FetchLimit {
		attrs = append(attrs, slog.Bool("first_page_full", true))
	}
	p.logger.Warn("draft record not found", attrs...)
	return skipped(MsgDraftNotFound)
}

// ShouldTriggerDraftApproval reports whether an update of objectID carrying
// updatedFields approves a draft. Any catalog failure yields false.
func (p *Propagator) ShouldTriggerDraftApproval(ctx context.Context, objectID string, updatedFields models.Fields, tenantID string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("draft approval gate panicked", slog.Any("panic", r))
			ok = false
		}
	}()

	objects, err := p.store.ListTenantObjects(ctx, tenantID)
	if err != nil {
		p.logger.Warn("fetch tenant objects failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
		return false
	}

	var name string
	for _, o := range objects {
		if o.ID == objectID {
			name = o.LogicalName()
			break
		}
	}

	return IsDraftsObject(name) && IsApproved(updatedFields[models.KeyApproved])
}

// verify re-reads the client after an update. Its outcome is logged and
// handed to the observer only.
func (p *Propagator) verify(ctx context.Context, tenantID, clientID string) {
	report := VerifyReport{TenantID: tenantID, ClientID: clientID}
	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("panic: %v", r)
		}
		p.report(report)
	}()

	records, err := p.store.FetchObjectRecords(ctx, tenantID, p.clientsObjectID, FetchLimit, 0)
	if err != nil {
		report.Err = err
		return
	}
	for _, rec := range records {
		if rec.ID == clientID {
			report.Found = true
			report.Data = rec.Data
			return
		}
	}
}

func (p *Propagator) report(r VerifyReport) {
	switch {
	case r.Err != nil:
		p.logger.Warn("client verification failed",
			slog.String("tenant_id", r.TenantID),
			slog.String("client_id", r.ClientID),
			slog.String("error", r.Err.Error()))
	case !r.Found:
		p.logger.Warn("client verification: record not found",
			slog.String("tenant_id", r.TenantID),
			slog.String("client_id", r.ClientID))
	default:
		p.logger.Debug("client verification",
			slog.String("tenant_id", r.TenantID),
			slog.String("client_id", r.ClientID),
			slog.Any(models.KeyScope, r.Data[models.KeyScope]),
			slog.Any(models.KeyAddress, r.Data[models.KeyAddress]),
			slog.Any(models.KeyStatus, r.Data[models.KeyStatus]))
	}
	if p.onVerify != nil {
		func() {
			defer func() { _ = recover() }()
			p.onVerify(r)
		}()
	}
}
