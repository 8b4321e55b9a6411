package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/starford/tenantdesk/internal/logos"
	"github.com/starford/tenantdesk/internal/pdfclient"
	"github.com/starford/tenantdesk/internal/spreadsheet"
)

const maxDocumentUpload = 50 << 20

// DocumentHandler serves spreadsheet import, PDF generation and the logo
// library.
type DocumentHandler struct {
	pdf       *pdfclient.Client
	logos     *logos.Library
	maxImport int64
}

// NewDocumentHandler creates a DocumentHandler. lib may be nil.
func NewDocumentHandler(pdf *pdfclient.Client, lib *logos.Library, maxImport int64) *DocumentHandler {
	if maxImport <= 0 {
		maxImport = spreadsheet.DefaultMaxBytes
	}
	return &DocumentHandler{pdf: pdf, logos: lib, maxImport: maxImport}
}

// ParseExcel handles POST /api/excel/parse (multipart field "excel").
func (h *DocumentHandler) ParseExcel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImport+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("File size too large. Maximum allowed: %dMB", h.maxImport>>20)))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody(spreadsheet.MsgNoFile))
		return
	}

	file, header, err := r.FormFile("excel")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(spreadsheet.MsgNoFile))
		return
	}
	defer file.Close()

	if err := spreadsheet.CheckUpload(header.Filename, header.Size, h.maxImport); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	res, err := spreadsheet.Parse(file)
	if err != nil {
		var sErr *spreadsheet.Error
		if errors.As(err, &sErr) {
			writeJSON(w, http.StatusBadRequest, errorBody(sErr.Msg))
			return
		}
		slog.Error("excel parse failed", slog.String("file", header.Filename), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("Failed to parse Excel file: "+err.Error()))
		return
	}

	slog.Info("excel parsed",
		slog.String("file", header.Filename),
		slog.Int("headers", len(res.Headers)),
		slog.Int("rows", res.TotalRows))
	writeJSON(w, http.StatusOK, res)
}

// GenerateCertificate handles POST /api/pdf/generate.
func (h *DocumentHandler) GenerateCertificate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	form, ok, err := readFormFile(r, "form")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("No form document uploaded"))
		return
	}
	rawFields := r.FormValue("fields")
	if rawFields == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("No field data provided"))
		return
	}
	if err := pdfclient.CheckFormName(form.Name); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	fields, err := pdfclient.DecodeFields(rawFields, "Invalid field data format")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := pdfclient.ValidateCertificateFields(fields); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	logoFiles, err := readFormFiles(r, "logo_files")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	doc, err := h.pdf.Certificate(r.Context(), form, rawFields, fields, logoFiles)
	if err != nil {
		var up *pdfclient.UpstreamError
		if errors.As(err, &up) {
			writeJSON(w, up.Status, errorBody(up.Error()))
			return
		}
		slog.Error("certificate generation failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writePDF(w, doc)
}

// GenerateSoftcopy handles POST /api/pdf/generate-softcopy.
func (h *DocumentHandler) GenerateSoftcopy(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	raw := r.FormValue("data")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("Data field is required"))
		return
	}
	data, err := pdfclient.DecodeFields(raw, "Invalid JSON data")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	payload, err := pdfclient.SoftcopyPayload(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	logoFiles, err := readFormFiles(r, "logo_files")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	doc, err := h.pdf.Softcopy(r.Context(), payload, logoFiles)
	if err != nil {
		slog.Error("softcopy generation failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writePDF(w, doc)
}

// ListLogos handles GET /api/logos.
func (h *DocumentHandler) ListLogos(w http.ResponseWriter, _ *http.Request) {
	resp := LogoListResponse{Logos: []logos.Entry{}}
	if h.logos != nil {
		resp.Logos = h.logos.List()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writePDF(w http.ResponseWriter, doc *pdfclient.Document) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", pdfclient.ContentDisposition(doc.Filename))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func readFormFile(r *http.Request, field string) (pdfclient.File, bool, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return pdfclient.File{}, false, nil
	}
	f, err := readPart(r.MultipartForm.File[field][0])
	return f, err == nil, err
}

func readFormFiles(r *http.Request, field string) ([]pdfclient.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var out []pdfclient.File
	for _, fh := range r.MultipartForm.File[field] {
		f, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader) (pdfclient.File, error) {
	src, err := fh.Open()
	if err != nil {
		return pdfclient.File{}, fmt.Errorf("failed to read upload %s", fh.Filename)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return pdfclient.File{}, fmt.Errorf("failed to read upload %s", fh.Filename)
	}
	return pdfclient.File{Name: fh.Filename, Data: data}, nil
}
