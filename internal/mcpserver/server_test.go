package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/tenantdesk/internal/approval"
	"github.com/starford/tenantdesk/internal/logos"
	"github.com/starford/tenantdesk/internal/models"
	"github.com/starford/tenantdesk/internal/recordservice"
	"github.com/starford/tenantdesk/internal/storage"
	"github.com/starford/tenantdesk/internal/testutil"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testServer(t *testing.T) (*Server, *storage.SQLite, *logos.Library) {
	t.Helper()

	store := testutil.TestStore(t)
	testutil.SeedCatalog(t, store, "t1")

	lib, err := logos.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	prop := approval.New(store,
		approval.WithLogger(testutil.Logger()),
		approval.WithClientsObjectID(testutil.ClientsObjectID))
	svc := recordservice.NewService(store, prop, nil, testutil.Logger())
	return New(svc, prop, lib, nil), store, lib
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "resolve_field":
		result, err = srv.resolveField(ctx, req)
	case "format_column_label":
		result, err = srv.formatColumnLabel(ctx, req)
	case "should_trigger_draft_approval":
		result, err = srv.shouldTrigger(ctx, req)
	case "handle_draft_approval":
		result, err = srv.handleDraftApproval(ctx, req)
	case "list_records":
		result, err = srv.listRecords(ctx, req)
	case "upload_logo":
		result, err = srv.uploadLogo(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s returned error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) == 0 {
		return ""
	}
	if tc, ok := r.Content[0].(mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func decode(t *testing.T, r *mcp.CallToolResult, v any) {
	t.Helper()
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
	if err := json.Unmarshal([]byte(resultText(r)), v); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
}

func TestResolveField(t *testing.T) {
	srv, _, _ := testServer(t)

	tests := []struct {
		record  string
		field   string
		found   bool
		display string
	}{
		{`{"company_name__a":"Acme"}`, "companyName", true, "Acme"},
		{`{"scope_a":"Audit"}`, "scope", true, "Audit"},
		{`{"other":1}`, "scope", false, "-"},
		{`{"scope__a":null}`, "scope", true, "-"},
	}
	for _, tt := range tests {
		var out struct {
			Found   bool   `json:"found"`
			Display string `json:"display"`
		}
		decode(t, callTool(t, srv, "resolve_field", map[string]interface{}{
			"record": tt.record,
			"field":  tt.field,
		}), &out)
		if out.Found != tt.found || out.Display != tt.display {
			t.Errorf("resolve %s in %s = %+v", tt.field, tt.record, out)
		}
	}
}

func TestResolveField_InvalidRecord(t *testing.T) {
	srv, _, _ := testServer(t)
	for _, rec := range []string{"not json", "[1,2]", "null"} {
		r := callTool(t, srv, "resolve_field", map[string]interface{}{"record": rec, "field": "x"})
		if !r.IsError {
			t.Errorf("record %q: expected error", rec)
		}
	}
}

func TestFormatColumnLabel(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "format_column_label", map[string]interface{}{"column": "company_name"})
	if got := resultText(r); got != "Company Name" {
		t.Errorf("label = %q", got)
	}

	r = callTool(t, srv, "format_column_label", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing column")
	}
}

func TestShouldTriggerDraftApproval(t *testing.T) {
	srv, _, _ := testServer(t)

	tests := []struct {
		objectID string
		updated  string
		want     bool
	}{
		{testutil.DraftsObjectID, `{"approved__a":"Yes"}`, true},
		{testutil.DraftsObjectID, `{"approved__a":true}`, true},
		{testutil.DraftsObjectID, `{"approved__a":"No"}`, false},
		{testutil.ClientsObjectID, `{"approved__a":"Yes"}`, false},
		{"unknown", `{"approved__a":"Yes"}`, false},
	}
	for _, tt := range tests {
		var out struct {
			Trigger bool `json:"trigger"`
		}
		decode(t, callTool(t, srv, "should_trigger_draft_approval", map[string]interface{}{
			"tenant_id":      "t1",
			"object_id":      tt.objectID,
			"updated_fields": tt.updated,
		}), &out)
		if out.Trigger != tt.want {
			t.Errorf("%s %s: trigger = %v, want %v", tt.objectID, tt.updated, out.Trigger, tt.want)
		}
	}
}

func TestHandleDraftApproval(t *testing.T) {
	srv, store, _ := testServer(t)
	testutil.Insert(t, store, "t1", testutil.ClientsObjectID, "c1", models.Fields{"company_name": "Acme"})
	testutil.Insert(t, store, "t1", testutil.DraftsObjectID, "d1", models.Fields{
		models.KeyApproved:  "Yes",
		models.KeyClientRef: "c1",
		models.KeyScope:     "Full audit",
	})

	var res approval.Result
	decode(t, callTool(t, srv, "handle_draft_approval", map[string]interface{}{
		"tenant_id": "t1",
		"record_id": "d1",
		"object_id": testutil.DraftsObjectID,
		"user_id":   "u7",
	}), &res)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	client := testutil.Fetch(t, store, "t1", testutil.ClientsObjectID, "c1")
	if client[models.KeyScope] != "Full audit" || client[models.KeyStatus] != approval.StatusDraftApproved {
		t.Errorf("client = %v", client)
	}
}

func TestHandleDraftApproval_NotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	var res approval.Result
	decode(t, callTool(t, srv, "handle_draft_approval", map[string]interface{}{
		"tenant_id": "t1",
		"record_id": "ghost",
		"object_id": testutil.DraftsObjectID,
	}), &res)
	if res.Success || res.Message != approval.MsgDraftNotFound {
		t.Errorf("result = %+v", res)
	}
}

func TestListRecords(t *testing.T) {
	srv, store, _ := testServer(t)
	testutil.Insert(t, store, "t1", testutil.ClientsObjectID, "c1", models.Fields{"scope__a": "S"})
	testutil.Insert(t, store, "t1", testutil.ClientsObjectID, "c2", models.Fields{"address__a": "A"})

	var out recordservice.RecordList
	decode(t, callTool(t, srv, "list_records", map[string]interface{}{
		"tenant_id": "t1",
		"object_id": testutil.ClientsObjectID,
		"limit":     float64(1),
	}), &out)
	if len(out.Records) != 1 || out.Limit != 1 {
		t.Errorf("list = %+v", out)
	}

	r := callTool(t, srv, "list_records", map[string]interface{}{"tenant_id": "", "object_id": "x"})
	if !r.IsError {
		t.Error("expected error for empty tenant")
	}
}

func TestUploadLogo_DataURI(t *testing.T) {
	srv, _, lib := testServer(t)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)

	r := callTool(t, srv, "upload_logo", map[string]interface{}{"url": uri, "filename": "acme logo.png"})
	var out logos.Entry
	decode(t, r, &out)
	if out.Name != "acme_logo.png" || out.Size != int64(len(pngHeader)) {
		t.Errorf("upload = %+v", out)
	}
	if _, err := os.Stat(filepath.Join(lib.Root(), "acme_logo.png")); err != nil {
		t.Errorf("file not written: %v", err)
	}
	if _, ok := lib.Lookup("acme_logo.png"); !ok {
		t.Error("library does not list uploaded logo")
	}

	r = callTool(t, srv, "upload_logo", map[string]interface{}{"url": uri, "filename": "acme logo.png"})
	if !r.IsError || !strings.Contains(resultText(r), "already exists") {
		t.Errorf("duplicate upload = %q", resultText(r))
	}
}

func TestUploadLogo_Rejects(t *testing.T) {
	srv, _, _ := testServer(t)
	png := base64.StdEncoding.EncodeToString(pngHeader)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"not base64 uri", map[string]interface{}{"url": "data:image/png," + png}},
		{"unsupported mime", map[string]interface{}{"url": "data:image/gif;base64," + png}},
		{"bad extension", map[string]interface{}{"url": "data:image/png;base64," + png, "filename": "x.gif"}},
		{"magic mismatch", map[string]interface{}{"url": "data:application/pdf;base64," + png, "filename": "x.pdf"}},
		{"svg without tag", map[string]interface{}{"url": "data:image/svg+xml;base64," + png, "filename": "x.svg"}},
		{"ftp scheme", map[string]interface{}{"url": "ftp://example.com/x.png"}},
		{"loopback", map[string]interface{}{"url": "http://127.0.0.1/x.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := callTool(t, srv, "upload_logo", tt.args)
			if !r.IsError {
				t.Errorf("expected error, got %q", resultText(r))
			}
		})
	}
}

func TestUploadLogo_NoLibrary(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.logos = nil
	r := callTool(t, srv, "upload_logo", map[string]interface{}{"url": "data:image/png;base64,AA=="})
	if !r.IsError {
		t.Error("expected error without library")
	}
}

func TestUploadLogo_HTTP(t *testing.T) {
	srv, _, lib := testServer(t)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer origin.Close()
	srv.fetch = logos.NewFetcher(logos.WithFetchClient(origin.Client()))

	var out logos.Entry
	decode(t, callTool(t, srv, "upload_logo", map[string]interface{}{"url": origin.URL + "/brand/acme.png"}), &out)
	if out.Name != "acme.png" {
		t.Errorf("name = %q, want acme.png", out.Name)
	}
	if _, ok := lib.Lookup("acme.png"); !ok {
		t.Error("downloaded logo not in library")
	}
}

func TestDraftFormatResource(t *testing.T) {
	srv, _, _ := testServer(t)
	contents, err := srv.readDraftFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != DraftFormatURI || !strings.Contains(tc.Text, "Client_name__a") {
		t.Errorf("resource = %+v", contents)
	}
}
