package api

import (
	"github.com/starford/tenantdesk/internal/approval"
	"github.com/starford/tenantdesk/internal/logos"
	"github.com/starford/tenantdesk/internal/models"
	"github.com/starford/tenantdesk/internal/recordservice"
	"github.com/starford/tenantdesk/internal/spreadsheet"
)

// ObjectListResponse wraps a tenant's object catalog.
type ObjectListResponse struct {
	Objects []models.ObjectInfo `json:"objects"`
}

// RecordListResponse is one page of records with display columns.
type RecordListResponse = recordservice.RecordList

// FieldResponse is a single resolved field.
type FieldResponse = recordservice.FieldValue

// UpdateRecordRequest is the body of PATCH .../records/{recordID}.
type UpdateRecordRequest = models.UpdateRequest

// UpdateRecordResponse reports the update and any approval it triggered.
type UpdateRecordResponse = recordservice.UpdateOutcome

// ApprovalResponse is the outcome of a draft approval.
type ApprovalResponse = approval.Result

// ExcelParseResponse is the parsed first sheet of an uploaded workbook.
type ExcelParseResponse = spreadsheet.Result

// LogoListResponse lists the logo library.
type LogoListResponse struct {
	Logos []logos.Entry `json:"logos"`
}
