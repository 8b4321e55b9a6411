package pdfclient

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tenantdesk/internal/apperr"
)

// Field names shared by certificates and soft copies.
const (
	FieldCompanyName = "Company Name"
	FieldAddress     = "Address"
	FieldScope       = "Scope"
	FieldISOStandard = "ISO Standard"
	FieldLogo        = "Logo"
)

// RequiredCertificateFields must be non-blank on every certificate request.
var RequiredCertificateFields = []string{FieldCompanyName, FieldAddress, FieldScope, FieldISOStandard}

// SoftcopyFields are forwarded, trimmed, to the soft-copy endpoint.
var SoftcopyFields = []string{
	FieldCompanyName,
	FieldAddress,
	"Address alignment",
	FieldISOStandard,
	FieldScope,
	"Certificate Number",
	"Original Issue Date",
	"Issue Date",
	"Surveillance/ Expiry Date",
	"Recertification Date",
	"Revision",
	"Initial Registration Date",
	"Surveillance Due Date",
	"Expiry Date",
	"Size",
	"Accreditation",
	FieldLogo,
	"Country",
	"Extra Line",
	"Language",
	"Name Font Size",
	"Name Adjustment",
	"Address Font Size",
	"Address Adjustment",
	"Scope Font Size",
	"Scope Adjustment",
}

var formExtensions = map[string]bool{".docx": true, ".pdf": true, ".png": true, ".jpg": true, ".jpeg": true}

// RequestError is a rejected request; Msg is shown to the caller.
type RequestError struct {
	Msg string
}

func (e *RequestError) Error() string { return e.Msg }

func (e *RequestError) Unwrap() error { return apperr.ErrInvalidInput }

func invalid(msg string) error { return &RequestError{Msg: msg} }

// CheckFormName validates the extension of a certificate form template.
func CheckFormName(name string) error {
	if !formExtensions[strings.ToLower(filepath.Ext(name))] {
		return invalid("Form must be .docx, .pdf, .png, or .jpg format")
	}
	return nil
}

// DecodeFields parses a JSON object of field values.
func DecodeFields(raw, invalidMsg string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return nil, invalid(invalidMsg)
	}
	return out, nil
}

// ValidateCertificateFields reports every blank required field, in order.
func ValidateCertificateFields(fields map[string]any) error {
	var missing []string
	for _, name := range RequiredCertificateFields {
		if err := validation.Validate(strings.TrimSpace(textOf(fields[name])), validation.Required); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return invalid("Missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// SoftcopyPayload trims the recognized soft-copy fields of data into a new
// payload. The company name is required.
func SoftcopyPayload(data map[string]any) (map[string]any, error) {
	company := strings.TrimSpace(textOf(data[FieldCompanyName]))
	if err := validation.Validate(company, validation.Required); err != nil {
		return nil, invalid("Company name is required")
	}
	out := make(map[string]any, len(SoftcopyFields)+1)
	for _, k := range SoftcopyFields {
		out[k] = strings.TrimSpace(textOf(data[k]))
	}
	return out, nil
}

var unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*]`)
var spaceRe = regexp.MustCompile(`\s+`)

// SanitizeFilenamePart replaces filename-unsafe characters and whitespace runs
// with underscores. Non-ASCII letters are kept.
func SanitizeFilenamePart(s string) string {
	return spaceRe.ReplaceAllString(unsafeFilenameRe.ReplaceAllString(s, "_"), "_")
}

// CertificateFilename is "<company>_<standard>_draft.pdf".
func CertificateFilename(fields map[string]any) string {
	company := firstText(fields, FieldCompanyName, "Company")
	if company == "" {
		company = "Unknown"
	}
	iso := textOf(fields[FieldISOStandard])
	if iso == "" {
		iso = "Unknown"
	}
	return fmt.Sprintf("%s_%s_draft.pdf", SanitizeFilenamePart(company), SanitizeFilenamePart(iso))
}

// SoftcopyFilename is "<company>_softcopy.pdf".
func SoftcopyFilename(company string) string {
	return SanitizeFilenamePart(company) + "_softcopy.pdf"
}

// ContentDisposition builds an attachment header with an ASCII fallback name
// and the exact UTF-8 name.
func ContentDisposition(filename string) string {
	var ascii strings.Builder
	for _, r := range filename {
		if r > 0x7f {
			ascii.WriteByte('_')
			continue
		}
		ascii.WriteRune(r)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii.String(), encodeURIComponent(filename))
}

// encodeURIComponent escapes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			strings.IndexByte("-_.!~*'()", c) >= 0:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

func firstText(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := textOf(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
