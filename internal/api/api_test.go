package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/tenantdesk/internal/approval"
	"github.com/starford/tenantdesk/internal/logos"
	"github.com/starford/tenantdesk/internal/models"
	"github.com/starford/tenantdesk/internal/pdfclient"
	"github.com/starford/tenantdesk/internal/recordservice"
	"github.com/starford/tenantdesk/internal/sse"
	"github.com/starford/tenantdesk/internal/storage"
	"github.com/starford/tenantdesk/internal/testutil"
)

type testEnv struct {
	store  *storage.SQLite
	router http.Handler
	lib    *logos.Library
}

type envOpts struct {
	authToken string
	tenants   map[string]Credential
	pdfURL    string
	sse       http.Handler
}

// newEnv wires a seeded SQLite store, the record service and document
// handlers behind the API router.
func newEnv(t *testing.T, o envOpts) *testEnv {
	t.Helper()
	store := testutil.TestStore(t)
	testutil.SeedCatalog(t, store, "t1")

	prop := approval.New(store, approval.WithLogger(testutil.Logger()))
	svc := recordservice.NewService(store, prop, nil, testutil.Logger())

	lib, err := logos.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	pdfURL := o.pdfURL
	if pdfURL == "" {
		pdfURL = "http://127.0.0.1:1"
	}
	pdf := pdfclient.New(pdfURL, "tok", time.Second,
		pdfclient.WithLogoSource(lib),
		pdfclient.WithLogger(testutil.Logger()))

	auth := Auth{Enabled: o.authToken != "" || len(o.tenants) > 0, Token: o.authToken, Tenants: o.tenants}
	router := NewRouter(NewHandler(svc), NewDocumentHandler(pdf, lib, 0), auth, o.sse)
	return &testEnv{store: store, router: router, lib: lib}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func TestListObjects(t *testing.T) {
	env := newEnv(t, envOpts{})
	w := env.do(t, http.MethodGet, "/tenants/t1/objects", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[ObjectListResponse](t, w)
	if len(resp.Objects) != 2 {
		t.Errorf("objects = %+v", resp.Objects)
	}

	w = env.do(t, http.MethodGet, "/tenants/other/objects", nil, nil)
	if resp := decode[ObjectListResponse](t, w); len(resp.Objects) != 0 {
		t.Errorf("tenant isolation broken: %+v", resp.Objects)
	}
}

func TestListRecords_ETag(t *testing.T) {
	env := newEnv(t, envOpts{})
	testutil.Insert(t, env.store, "t1", testutil.ClientsObjectID, "c1", models.Fields{"scope__a": "S"})

	w := env.do(t, http.MethodGet, "/tenants/t1/objects/"+testutil.ClientsObjectID+"/records?limit=10", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list := decode[RecordListResponse](t, w)
	if len(list.Records) != 1 || list.Columns[0].Label != "Scope  A" || list.Limit != 10 {
		t.Errorf("list = %+v", list)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	w = env.do(t, http.MethodGet, "/tenants/t1/objects/"+testutil.ClientsObjectID+"/records", nil,
		map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}
}

func TestGetField(t *testing.T) {
	env := newEnv(t, envOpts{})
	testutil.Insert(t, env.store, "t1", testutil.ClientsObjectID, "c1", models.Fields{"address__a": "1 Main St"})

	w := env.do(t, http.MethodGet, "/tenants/t1/objects/"+testutil.ClientsObjectID+"/records/c1/fields/address", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	fv := decode[FieldResponse](t, w)
	if !fv.Found || fv.Display != "1 Main St" {
		t.Errorf("field = %+v", fv)
	}

	w = env.do(t, http.MethodGet, "/tenants/t1/objects/"+testutil.ClientsObjectID+"/records/c1/fields/country", nil, nil)
	if fv := decode[FieldResponse](t, w); fv.Found || fv.Display != "-" {
		t.Errorf("absent field = %+v", fv)
	}

	w = env.do(t, http.MethodGet, "/tenants/t1/objects/"+testutil.ClientsObjectID+"/records/ghost/fields/x", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing record = %d, want 404", w.Code)
	}
}

func TestUpdateRecord_TriggersApproval(t *testing.T) {
	env := newEnv(t, envOpts{})
	testutil.Insert(t, env.store, "t1", testutil.ClientsObjectID, "c1", models.Fields{})
	testutil.Insert(t, env.store, "t1", testutil.DraftsObjectID, "d1", models.Fields{
		"Client_name__a": "c1",
		"scope__a":       "Design of widgets",
	})

	body := UpdateRecordRequest{TableName: testutil.DraftsTable, Fields: models.Fields{"approved__a": true}}
	w := env.do(t, http.MethodPatch, "/tenants/t1/objects/"+testutil.DraftsObjectID+"/records/d1", body,
		map[string]string{UserHeader: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	out := decode[UpdateRecordResponse](t, w)
	if !out.Updated || out.Approval == nil || !out.Approval.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Approval.Message != "Successfully copied scope and status (set to draft approved) from draft to client!" {
		t.Errorf("message = %q", out.Approval.Message)
	}

	client := testutil.Fetch(t, env.store, "t1", testutil.ClientsObjectID, "c1")
	if client["status__a"] != "draft approved" || client["scope__a"] != "Design of widgets" {
		t.Errorf("client = %v", client)
	}
	if by, _ := env.store.UpdatedBy(context.Background(), "t1", "c1"); by != "alice" {
		t.Errorf("updated_by = %q", by)
	}
}

func TestUpdateRecord_BadRequests(t *testing.T) {
	env := newEnv(t, envOpts{})

	req := httptest.NewRequest(http.MethodPatch, "/tenants/t1/objects/x/records/r1", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPatch, "/tenants/t1/objects/"+testutil.ClientsObjectID+"/records/r1", UpdateRecordRequest{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty fields = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPatch, "/tenants/t1/objects/"+testutil.ClientsObjectID+"/records/ghost",
		UpdateRecordRequest{Fields: models.Fields{"a": "b"}}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing record = %d, want 404", w.Code)
	}
	if e := decode[errResponse](t, w); e.Code != "P0002" {
		t.Errorf("error body = %+v", e)
	}
}

func TestApproveDraft(t *testing.T) {
	env := newEnv(t, envOpts{})
	testutil.Insert(t, env.store, "t1", testutil.DraftsObjectID, "d1", models.Fields{
		"approved__a": "No", "Client_name__a": "c1", "scope__a": "S",
	})

	w := env.do(t, http.MethodPost, "/tenants/t1/drafts/d1/approve?object_id="+testutil.DraftsObjectID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decode[ApprovalResponse](t, w)
	if res.Success || res.Message != approval.MsgNotApproved {
		t.Errorf("result = %+v", res)
	}

	w = env.do(t, http.MethodPost, "/tenants/t1/drafts/ghost/approve", nil, nil)
	if res := decode[ApprovalResponse](t, w); res.Message != approval.MsgDraftNotFound || res.CopiedFields == nil {
		t.Errorf("result = %+v", res)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newEnv(t, envOpts{authToken: "secret123"})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer secret123", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer wrong", http.StatusUnauthorized},
		{"scheme", "Basic secret123", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := env.do(t, http.MethodGet, "/tenants/t1/objects", nil, headers)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_TenantToken(t *testing.T) {
	env := newEnv(t, envOpts{
		authToken: "operator",
		tenants: map[string]Credential{
			"t1-token": {TenantID: "t1", UserID: "bob"},
			"t2-token": {TenantID: "t2"},
		},
	})
	testutil.SeedCatalog(t, env.store, "t2")

	tests := []struct {
		name  string
		token string
		path  string
		want  int
	}{
		{"own tenant", "t1-token", "/tenants/t1/objects", http.StatusOK},
		{"other tenant", "t1-token", "/tenants/t2/objects", http.StatusForbidden},
		{"other tenant records", "t2-token", "/tenants/t1/objects/" + testutil.DraftsObjectID + "/records/", http.StatusForbidden},
		{"operator any tenant", "operator", "/tenants/t2/objects", http.StatusOK},
		{"shared route", "t2-token", "/logos", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, nil, map[string]string{"Authorization": "Bearer " + tt.token})
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUpdateRecord_CredentialUserWins(t *testing.T) {
	env := newEnv(t, envOpts{tenants: map[string]Credential{"t1-token": {TenantID: "t1", UserID: "bob"}}})
	testutil.Insert(t, env.store, "t1", testutil.ClientsObjectID, "c1", models.Fields{})
	testutil.Insert(t, env.store, "t1", testutil.DraftsObjectID, "d1", models.Fields{
		"Client_name__a": "c1",
		"scope__a":       "Design of widgets",
	})

	body := UpdateRecordRequest{TableName: testutil.DraftsTable, Fields: models.Fields{"approved__a": true}}
	w := env.do(t, http.MethodPatch, "/tenants/t1/objects/"+testutil.DraftsObjectID+"/records/d1", body,
		map[string]string{"Authorization": "Bearer t1-token", UserHeader: "mallory"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if by, _ := env.store.UpdatedBy(context.Background(), "t1", "c1"); by != "bob" {
		t.Errorf("updated_by = %q, want bob", by)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for k, v := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"X-XSS-Protection":       "1; mode=block",
	} {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := newEnv(t, envOpts{authToken: "secret", sse: blockingSSE})
	w := env.do(t, http.MethodGet, "/tenants/t1/events", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := newEnv(t, envOpts{authToken: "tok", sse: blockingSSE})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/tenants/t1/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d", w.Code)
	}
}

type lockedRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (l *lockedRecorder) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ResponseRecorder.Write(p)
}

func (l *lockedRecorder) body() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ResponseRecorder.Body.String()
}

func TestSSEEvents_TenantScoped(t *testing.T) {
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	env := newEnv(t, envOpts{sse: broker})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/tenants/t2/events", nil).WithContext(ctx)
	w := &lockedRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	broker.PublishRecordEvent(models.RecordEvent{Kind: sse.TypeDraftApproved, TenantID: "t1", RecordID: "d-t1"})
	broker.PublishRecordEvent(models.RecordEvent{Kind: sse.TypeRecordUpdated, TenantID: "t2", RecordID: "r-t2"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.body()
	if strings.Contains(body, "d-t1") {
		t.Errorf("t2 stream carried a t1 event: %q", body)
	}
	if !strings.Contains(body, "r-t2") {
		t.Errorf("t2 stream missing its own event: %q", body)
	}
}
