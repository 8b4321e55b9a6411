// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes tenantdesk record and approval tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tenantdesk/internal/approval"
	"github.com/starford/tenantdesk/internal/fields"
	"github.com/starford/tenantdesk/internal/logos"
	"github.com/starford/tenantdesk/internal/models"
	"github.com/starford/tenantdesk/internal/recordservice"
)

// DraftFormatURI is the resource describing draft and client record keys.
const DraftFormatURI = "tenantdesk://draft-record-format"

// Server wraps the MCP server with tenantdesk tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *recordservice.Service
	prop  *approval.Propagator
	logos *logos.Library
	fetch *logos.Fetcher
}

// New creates a new MCP server with all tools registered. lib may be nil,
// in which case upload_logo reports an error. fetch defaults to
// logos.NewFetcher().
func New(svc *recordservice.Service, prop *approval.Propagator, lib *logos.Library, fetch *logos.Fetcher) *Server {
	if fetch == nil {
		fetch = logos.NewFetcher()
	}
	s := &Server{svc: svc, prop: prop, logos: lib, fetch: fetch}

	s.mcp = server.NewMCPServer(
		"Tenantdesk",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("resolve_field",
		mcp.WithDescription("Resolve a logical field name against a record, tolerating the __a/_a suffix "+
			"and camelCase/snake_case variants used by tenant-custom fields."),
		mcp.WithString("record", mcp.Required(), mcp.Description("Record payload as a JSON object")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Logical field name, e.g. companyName")),
	), s.resolveField)

	s.mcp.AddTool(mcp.NewTool("format_column_label",
		mcp.WithDescription("Convert a snake_case column name into its display label."),
		mcp.WithString("column", mcp.Required(), mcp.Description("Raw column name")),
	), s.formatColumnLabel)

	s.mcp.AddTool(mcp.NewTool("should_trigger_draft_approval",
		mcp.WithDescription("Report whether an update of an object approves a draft. "+
			"Read "+DraftFormatURI+" for the record keys involved."),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant id")),
		mcp.WithString("object_id", mcp.Required(), mcp.Description("Object id the update targets")),
		mcp.WithString("updated_fields", mcp.Required(), mcp.Description("Updated fields as a JSON object")),
	), s.shouldTrigger)

	s.mcp.AddTool(mcp.NewTool("handle_draft_approval",
		mcp.WithDescription("Copy scope and address of an approved draft onto its client and mark the "+
			"client 'draft approved'. Returns {success, message, copiedFields}."),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant id")),
		mcp.WithString("record_id", mcp.Required(), mcp.Description("Draft record id")),
		mcp.WithString("object_id", mcp.Description("Drafts object id (default: drafts)")),
		mcp.WithString("user_id", mcp.Description("Acting user recorded on the client")),
	), s.handleDraftApproval)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List one page of an object's records with their display columns."),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant id")),
		mcp.WithString("object_id", mcp.Required(), mcp.Description("Object id or name")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 100, max 1000)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("upload_logo",
		mcp.WithDescription("Add a logo to the logo library from a base64 data: URI or an http(s) URL. "+
			"Accepted formats: png, jpg, jpeg, svg, pdf; existing logos are never replaced."),
		mcp.WithString("url", mcp.Required(), mcp.Description("data: URI or http(s) URL")),
		mcp.WithString("filename", mcp.Description("Library file name (derived from the URL when empty)")),
	), s.uploadLogo)

	s.mcp.AddResource(
		mcp.NewResource(DraftFormatURI, "Draft Record Format",
			mcp.WithResourceDescription("Fixed keys on draft and client records used by the approval workflow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDraftFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func decodeObject(req mcp.CallToolRequest, key string) (models.Fields, error) {
	raw, err := req.RequireString(key)
	if err != nil {
		return nil, err
	}
	var f models.Fields
	if err := json.Unmarshal([]byte(raw), &f); err != nil || f == nil {
		return nil, fmt.Errorf("%s must be a JSON object", key)
	}
	return f, nil
}

func (s *Server) resolveField(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	record, err := decodeObject(req, "record")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	field, err := req.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, ok := fields.Resolve(record, field)
	return jsonResult(map[string]any{
		"field":   field,
		"found":   ok,
		"value":   v,
		"display": fields.DisplayValue(record, field, nil),
	}), nil
}

func (s *Server) formatColumnLabel(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	col, err := req.RequireString("column")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fields.FormatColumnLabel(col)), nil
}

func (s *Server) shouldTrigger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := req.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	objectID, err := req.RequireString("object_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	updated, err := decodeObject(req, "updated_fields")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ok := s.prop.ShouldTriggerDraftApproval(ctx, objectID, updated, tenantID)
	return jsonResult(map[string]bool{"trigger": ok}), nil
}

func (s *Server) handleDraftApproval(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := req.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recordID, err := req.RequireString("record_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := s.svc.ApproveDraft(ctx, tenantID, req.GetString("object_id", ""), recordID, req.GetString("user_id", ""))
	return jsonResult(res), nil
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := req.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	objectID, err := req.RequireString("object_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := s.svc.ListRecords(ctx, tenantID, objectID, req.GetInt("limit", 0), req.GetInt("offset", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list), nil
}

func (s *Server) readDraftFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      DraftFormatURI,
			MIMEType: "text/markdown",
			Text:     DraftRecordFormat,
		},
	}, nil
}
