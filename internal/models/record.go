// Package models defines the domain types for tenantdesk.
package models

import (
	"fmt"
	"time"
)

// Fields is the loosely-typed payload of a tenant record. Values are strings,
// booleans, numbers or nil, as decoded from the data layer's JSON.
type Fields map[string]any

// Record is one row of a tenant-scoped table as returned by the data layer.
type Record struct {
	ID       string `json:"record_id"`
	ObjectID string `json:"object_id,omitempty"`
	Data     Fields `json:"record_data"`
}

// ObjectInfo is one entry of a tenant's object/table catalog.
type ObjectInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	ObjectName string `json:"object_name,omitempty"`
}

// LogicalName returns Name, falling back to ObjectName.
func (o ObjectInfo) LogicalName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.ObjectName
}

// Fixed keys on draft and client records.
const (
	KeyApproved  = "approved__a"
	KeyClientRef = "Client_name__a"
	KeyScope     = "scope__a"
	KeyAddress   = "address__a"
	KeyStatus    = "status__a"
	KeyUpdatedBy = "updated_by"
)

// DraftRecord is the typed view of a record from the drafts table. Approved
// keeps the raw flag value since "Yes", true and "true" are all accepted.
// Extra holds every tenant-custom field, recognized keys included.
type DraftRecord struct {
	RecordID   string
	Approved   any
	ClientID   string
	Scope      string
	HasScope   bool
	Address    string
	HasAddress bool
	Extra      Fields
}

// DraftFromFields builds a DraftRecord from a raw payload.
func DraftFromFields(recordID string, f Fields) DraftRecord {
	d := DraftRecord{RecordID: recordID, Extra: f}
	if f == nil {
		return d
	}
	d.Approved = f[KeyApproved]
	d.ClientID = stringValue(f[KeyClientRef])
	if v, ok := f[KeyScope]; ok && v != nil {
		d.Scope, d.HasScope = stringValue(v), true
	}
	if v, ok := f[KeyAddress]; ok && v != nil {
		d.Address, d.HasAddress = stringValue(v), true
	}
	return d
}

// ClientUpdate is the patch written onto a client record when a draft is approved.
type ClientUpdate struct {
	Scope      string
	HasScope   bool
	Address    string
	HasAddress bool
	Status     string
	UpdatedBy  string
}

// Fields renders the update as the data layer's update_data mapping.
func (u ClientUpdate) Fields() Fields {
	out := Fields{KeyStatus: u.Status}
	if u.HasScope {
		out[KeyScope] = u.Scope
	}
	if u.HasAddress {
		out[KeyAddress] = u.Address
	}
	if u.UpdatedBy != "" {
		out[KeyUpdatedBy] = u.UpdatedBy
	}
	return out
}

// UpdateRequest is a client-issued partial update of one record. An empty
// TableName is resolved from the tenant's object catalog.
type UpdateRequest struct {
	TableName string `json:"table_name"`
	Fields    Fields `json:"fields"`
}

// RecordEvent describes a change observed on a tenant record.
type RecordEvent struct {
	Kind     string    `json:"kind"`
	TenantID string    `json:"tenant_id"`
	ObjectID string    `json:"object_id,omitempty"`
	RecordID string    `json:"record_id"`
	At       time.Time `json:"at"`
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}
