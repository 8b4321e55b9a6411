// Package pdfclient talks to the external document-rendering service that
// produces certificate drafts and soft copies.
package pdfclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/starford/tenantdesk/internal/apperr"
)

// Service endpoints.
const (
	PathCertificate = "/generate-certificate"
	PathSoftcopy    = "/generate-softcopy"

	// TokenHeader carries the shared service token.
	TokenHeader = "x-internal-token"
)

const maxDocumentSize = 64 << 20

// File is an uploaded file forwarded to the service.
type File struct {
	Name string
	Data []byte
}

// Document is a rendered PDF.
type Document struct {
	Filename string
	Data     []byte
}

// LogoSource resolves logo names that were not uploaded with the request.
type LogoSource interface {
	Lookup(name string) ([]byte, bool)
}

// UpstreamError is a non-2xx response from the rendering service.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("PDF service error (%d): %s", e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return apperr.ErrUpstream }

// Client calls the rendering service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logos   LogoSource
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogoSource sets the library consulted for logos named in the fields.
func WithLogoSource(src LogoSource) Option {
	return func(c *Client) { c.logos = src }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the service at baseURL.
func New(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Certificate renders a certificate draft from a form template and its field
// values. rawFields is forwarded unchanged; fields is its decoded form.
func (c *Client) Certificate(ctx context.Context, form File, rawFields string, fields map[string]any, logos []File) (*Document, error) {
	logos = c.withLibraryLogo(fields, logos)

	body, contentType, err := encodeMultipart(func(w *multipart.Writer) error {
		if err := w.WriteField("fields", rawFields); err != nil {
			return err
		}
		if err := writeFile(w, "form", form); err != nil {
			return err
		}
		return writeFiles(w, logos)
	})
	if err != nil {
		return nil, fmt.Errorf("pdfclient: encode certificate request: %w", err)
	}

	data, err := c.post(ctx, PathCertificate, body, contentType)
	if err != nil {
		return nil, err
	}

	c.logger.Info("certificate rendered",
		slog.String("form", form.Name),
		slog.Int("logos", len(logos)),
		slog.Int("bytes", len(data)))
	return &Document{Filename: CertificateFilename(fields), Data: data}, nil
}

// Softcopy renders a soft copy from the normalized payload built by
// SoftcopyPayload.
func (c *Client) Softcopy(ctx context.Context, data map[string]any, logos []File) (*Document, error) {
	logos = c.withLibraryLogo(data, logos)
	data["logo_lookup"] = logoLookup(logos)

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("pdfclient: encode softcopy data: %w", err)
	}

	body, contentType, err := encodeMultipart(func(w *multipart.Writer) error {
		if err := w.WriteField("data", string(payload)); err != nil {
			return err
		}
		return writeFiles(w, logos)
	})
	if err != nil {
		return nil, fmt.Errorf("pdfclient: encode softcopy request: %w", err)
	}

	doc, err := c.post(ctx, PathSoftcopy, body, contentType)
	if err != nil {
		return nil, err
	}

	company := textOf(data[FieldCompanyName])
	c.logger.Info("softcopy rendered",
		slog.String("company", company),
		slog.Int("logos", len(logos)),
		slog.Int("bytes", len(doc)))
	return &Document{Filename: SoftcopyFilename(company), Data: doc}, nil
}

func (c *Client) post(ctx context.Context, path string, body *bytes.Buffer, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("pdfclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(TokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdfclient: %s: %w: %w", path, apperr.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("pdfclient: read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("pdf service error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// withLibraryLogo appends the library file named by the Logo field when no
// uploaded logo carries that name.
func (c *Client) withLibraryLogo(fields map[string]any, logos []File) []File {
	if c.logos == nil {
		return logos
	}
	name := strings.TrimSpace(textOf(fields[FieldLogo]))
	if name == "" {
		return logos
	}
	for _, f := range logos {
		if f.Name == name {
			return logos
		}
	}
	data, ok := c.logos.Lookup(name)
	if !ok {
		c.logger.Debug("logo not in library", slog.String("logo", name))
		return logos
	}
	return append(logos, File{Name: name, Data: data})
}

// logoLookup mirrors the uploaded logo names as a JSON object keyed by name.
func logoLookup(logos []File) map[string]struct{} {
	out := make(map[string]struct{}, len(logos))
	for _, f := range logos {
		out[f.Name] = struct{}{}
	}
	return out
}

func encodeMultipart(fn func(*multipart.Writer) error) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := fn(w); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, field string, f File) error {
	part, err := w.CreateFormFile(field, f.Name)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}

func writeFiles(w *multipart.Writer, logos []File) error {
	for _, f := range logos {
		if err := writeFile(w, "logo_files", f); err != nil {
			return err
		}
	}
	return nil
}
