package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tenantdesk/internal/recordservice"
)

const maxJSONBody = 1 << 20

// Handler holds the record and approval route handlers.
type Handler struct {
	svc *recordservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *recordservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListObjects handles GET /api/tenants/{tenantID}/objects.
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := h.svc.ListObjects(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, "list objects", err)
		return
	}
	writeJSON(w, http.StatusOK, ObjectListResponse{Objects: objects})
}

// ListRecords handles GET /api/tenants/{tenantID}/objects/{objectID}/records.
// The page checksum is returned as ETag and honoured in If-None-Match.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, err := h.svc.ListRecords(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "objectID"), limit, offset)
	if err != nil {
		writeError(w, "list records", err)
		return
	}

	etag := `"` + list.Checksum + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Trim(match, `"`) == list.Checksum {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetField handles GET .../records/{recordID}/fields/{field}.
func (h *Handler) GetField(w http.ResponseWriter, r *http.Request) {
	fv, err := h.svc.GetField(r.Context(),
		chi.URLParam(r, "tenantID"),
		chi.URLParam(r, "objectID"),
		chi.URLParam(r, "recordID"),
		chi.URLParam(r, "field"))
	if err != nil {
		writeError(w, "get field", err)
		return
	}
	writeJSON(w, http.StatusOK, fv)
}

// UpdateRecord handles PATCH .../records/{recordID}. An update that approves
// a draft also propagates it to the linked client.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req UpdateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	out, err := h.svc.UpdateRecord(r.Context(),
		chi.URLParam(r, "tenantID"),
		chi.URLParam(r, "objectID"),
		chi.URLParam(r, "recordID"),
		userID(r),
		req)
	if err != nil {
		writeError(w, "update record", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ApproveDraft handles POST /api/tenants/{tenantID}/drafts/{recordID}/approve.
// The optional object_id query parameter selects the drafts object.
func (h *Handler) ApproveDraft(w http.ResponseWriter, r *http.Request) {
	res := h.svc.ApproveDraft(r.Context(),
		chi.URLParam(r, "tenantID"),
		r.URL.Query().Get("object_id"),
		chi.URLParam(r, "recordID"),
		userID(r))
	writeJSON(w, http.StatusOK, res)
}
