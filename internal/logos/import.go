package logos

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tenantdesk/internal/apperr"
)

// MaxSize bounds an imported logo.
const MaxSize = 10 << 20

// mediaTypes maps the content types accepted for import to their extension.
var mediaTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
}

// signatures are the leading bytes expected for each binary extension.
var signatures = map[string][]byte{
	".png":  []byte("\x89PNG\r\n\x1a\n"),
	".jpg":  {0xFF, 0xD8, 0xFF},
	".jpeg": {0xFF, 0xD8, 0xFF},
	".pdf":  []byte("%PDF-"),
}

// ErrBlockedAddress is returned when a download resolves to a loopback,
// link-local or unspecified address.
var ErrBlockedAddress = errors.New("logos: address not allowed")

// Download is logo content fetched from a data URI or an http(s) URL.
// Name is a suggested file name; Ext is derived from the declared media type.
type Download struct {
	Name string
	Ext  string
	Data []byte
}

// Fetcher retrieves logos for import.
type Fetcher struct {
	http *http.Client
}

// FetchOption configures a Fetcher.
type FetchOption func(*Fetcher)

// WithFetchClient replaces the guarded default client.
func WithFetchClient(hc *http.Client) FetchOption {
	return func(f *Fetcher) { f.http = hc }
}

// NewFetcher returns a Fetcher whose default client refuses to dial
// loopback, link-local and unspecified addresses.
func NewFetcher(opts ...FetchOption) *Fetcher {
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: guardAddress}
	f := &Fetcher{http: &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{DialContext: dialer.DialContext},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("logos: too many redirects")
			}
			return nil
		},
	}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// guardAddress runs on the resolved address of every outgoing connection,
// redirects included.
func guardAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// Fetch reads source, which is either a base64 data URI or an http(s) URL.
func (f *Fetcher) Fetch(ctx context.Context, source string) (*Download, error) {
	if strings.HasPrefix(source, "data:") {
		return decodeDataURI(source)
	}

	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("logos: source must be a data URI or an http(s) URL: %w", apperr.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("logos: build request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("logos: download: %w: %w", apperr.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("logos: download: HTTP %d: %w", resp.StatusCode, apperr.ErrUpstream)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("logos: read download: %w", err)
	}

	return &Download{
		Name: path.Base(u.Path),
		Ext:  mediaTypes[mediaType(resp.Header.Get("Content-Type"))],
		Data: data,
	}, nil
}

func decodeDataURI(uri string) (*Download, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("logos: data URI has no payload: %w", apperr.ErrInvalidInput)
	}
	meta, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("logos: data URI must be base64: %w", apperr.ErrInvalidInput)
	}
	ext, known := mediaTypes[mediaType(meta)]
	if !known {
		return nil, fmt.Errorf("logos: media type %q: %w", meta, apperr.ErrInvalidInput)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("logos: data URI payload: %w", apperr.ErrInvalidInput)
		}
	}
	return &Download{Ext: ext, Data: data}, nil
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// Import stores d under name, falling back to the download's own name and
// then to a generated one. The name is reduced to a safe base name and the
// content must match its extension.
func (l *Library) Import(name string, d *Download) (Entry, error) {
	if len(d.Data) > MaxSize {
		return Entry{}, fmt.Errorf("logos: %d bytes exceeds %d: %w", len(d.Data), MaxSize, apperr.ErrInvalidInput)
	}
	if name == "" && IsLogoName(d.Name) {
		name = d.Name
	}
	if name == "" {
		ext := d.Ext
		if ext == "" {
			return Entry{}, fmt.Errorf("logos: cannot name a download of unknown type: %w", apperr.ErrInvalidInput)
		}
		name = "logo-" + uuid.NewString()[:8] + ext
	}
	name = CleanName(name)
	if !IsLogoName(name) {
		return Entry{}, fmt.Errorf("logos: %q: extension must be one of png, jpg, jpeg, svg, pdf: %w", name, apperr.ErrInvalidInput)
	}
	if err := CheckContent(name, d.Data); err != nil {
		return Entry{}, err
	}
	return l.Save(name, d.Data)
}

// CleanName keeps the base name and replaces anything outside [A-Za-z0-9._-]
// with an underscore.
func CleanName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, filepath.Base(name))
}

// CheckContent verifies that data looks like a file of name's extension.
func CheckContent(name string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".svg" {
		head := data[:min(len(data), 1024)]
		if !bytes.Contains(head, []byte("<svg")) {
			return fmt.Errorf("logos: %q is not an SVG document: %w", name, apperr.ErrInvalidInput)
		}
		return nil
	}
	sig, ok := signatures[ext]
	if !ok || !bytes.HasPrefix(data, sig) {
		return fmt.Errorf("logos: content of %q does not match its extension: %w", name, apperr.ErrInvalidInput)
	}
	return nil
}
