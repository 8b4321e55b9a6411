// Package approval propagates approved draft records onto their linked
// client records.
//
// Guards are pure functions that decide whether a propagation may proceed and
// what it writes; the Propagator performs the data-layer calls around them.
package approval

import (
	"github.com/starford/tenantdesk/internal/models"
)

// StatusDraftApproved is written to the client's status field on every propagation.
const StatusDraftApproved = "draft approved"

// Labels reported in Result.CopiedFields.
const (
	CopiedScope   = "scope"
	CopiedAddress = "address"
	CopiedStatus  = "status (set to draft approved)"
)

// Messages for the terminal states that do not involve a data-layer call.
const (
	MsgNotApproved    = "Draft is not approved"
	MsgNoClientRef    = "No client ID found in draft record"
	MsgNothingToCopy  = "No scope or address data to copy"
	MsgDraftNotFound  = "Draft record not found"
	MsgFetchFailed    = "Error fetching draft record"
	MsgCopyFailed     = "Error copying draft data to client"
	MsgHandleFailed   = "Error handling draft approval"
	msgUpdateFailedFn = "Error updating client data: %s"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// IsApproved reports whether an approval flag value means "approved". Only
// the string "Yes", the boolean true and the string "true" qualify.
func IsApproved(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "Yes" || t == "true"
	case bool:
		return t
	default:
		return false
	}
}

// IsDraftsObject reports whether a catalog name designates the drafts table.
func IsDraftsObject(name string) bool {
	return name == "drafts__a" || name == "drafts"
}

// Plan is the client update derived from an approved draft.
type Plan struct {
	ClientID     string
	Update       models.ClientUpdate
	CopiedFields []string
}

// PlanPropagation evaluates, in order:
//   - the draft must be approved
//   - the draft must reference a client
//   - the draft must carry a scope or an address
//
// When allowed, the returned plan always sets the status field.
func PlanPropagation(d models.DraftRecord, userID string) (Plan, GuardResult) {
	if !IsApproved(d.Approved) {
		return Plan{}, GuardResult{Reason: MsgNotApproved}
	}
	if d.ClientID == "" {
		return Plan{}, GuardResult{Reason: MsgNoClientRef}
	}
	if d.Scope == "" && d.Address == "" {
		return Plan{}, GuardResult{Reason: MsgNothingToCopy}
	}

	p := Plan{
		ClientID: d.ClientID,
		Update: models.ClientUpdate{
			Scope:      d.Scope,
			HasScope:   d.HasScope,
			Address:    d.Address,
			HasAddress: d.HasAddress,
			Status:     StatusDraftApproved,
			UpdatedBy:  userID,
		},
	}
	if d.Scope != "" {
		p.CopiedFields = append(p.CopiedFields, CopiedScope)
	}
	if d.Address != "" {
		p.CopiedFields = append(p.CopiedFields, CopiedAddress)
	}
	p.CopiedFields = append(p.CopiedFields, CopiedStatus)
	return p, GuardResult{Allowed: true}
}
