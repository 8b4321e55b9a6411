package pdfclient

import (
	"errors"
	"testing"

	"github.com/starford/tenantdesk/internal/apperr"
)

func TestValidateCertificateFields(t *testing.T) {
	err := ValidateCertificateFields(map[string]any{
		"Company Name": "Acme",
		"Address":      "   ",
		"ISO Standard": "ISO 9001",
	})
	if err == nil || err.Error() != "Missing required fields: Address, Scope" {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Error("expected ErrInvalidInput")
	}

	ok := map[string]any{"Company Name": "A", "Address": "B", "Scope": "C", "ISO Standard": "D"}
	if err := ValidateCertificateFields(ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheckFormName(t *testing.T) {
	for name, ok := range map[string]bool{
		"f.docx": true, "F.PDF": true, "a.png": true, "a.jpg": true, "a.jpeg": true,
		"a.doc": false, "noext": false, "a.xlsx": false,
	} {
		if err := CheckFormName(name); (err == nil) != ok {
			t.Errorf("CheckFormName(%q) = %v", name, err)
		}
	}
}

func TestDecodeFields(t *testing.T) {
	if _, err := DecodeFields("{not json", "Invalid field data format"); err == nil || err.Error() != "Invalid field data format" {
		t.Errorf("err = %v", err)
	}
	if _, err := DecodeFields("null", "Invalid"); err == nil {
		t.Error("null should be rejected")
	}
	f, err := DecodeFields(`{"a":1}`, "x")
	if err != nil || f["a"] != float64(1) {
		t.Errorf("f = %v err = %v", f, err)
	}
}

func TestSoftcopyPayload(t *testing.T) {
	if _, err := SoftcopyPayload(map[string]any{"Company Name": "  "}); err == nil || err.Error() != "Company name is required" {
		t.Errorf("err = %v", err)
	}
	p, err := SoftcopyPayload(map[string]any{"Company Name": "Acme", "Revision": " 2 ", "Unknown": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != len(SoftcopyFields) {
		t.Errorf("payload keys = %d", len(p))
	}
	if p["Revision"] != "2" || p["Surveillance/ Expiry Date"] != "" {
		t.Errorf("payload = %v", p)
	}
	if _, ok := p["Unknown"]; ok {
		t.Error("unrecognized keys must not be forwarded")
	}
}

func TestFilenames(t *testing.T) {
	tests := []struct {
		fields map[string]any
		want   string
	}{
		{map[string]any{"Company Name": "Acme  Ltd", "ISO Standard": "ISO 9001:2015"}, "Acme_Ltd_ISO_9001_2015_draft.pdf"},
		{map[string]any{"Company": "A/B", "ISO Standard": "x"}, "A_B_x_draft.pdf"},
		{map[string]any{}, "Unknown_Unknown_draft.pdf"},
		{map[string]any{"Company Name": "Müller?", "ISO Standard": "14001"}, "Müller__14001_draft.pdf"},
	}
	for _, tt := range tests {
		if got := CertificateFilename(tt.fields); got != tt.want {
			t.Errorf("CertificateFilename(%v) = %q, want %q", tt.fields, got, tt.want)
		}
	}
	if got := SoftcopyFilename(`a"b c`); got != "a_b_c_softcopy.pdf" {
		t.Errorf("SoftcopyFilename = %q", got)
	}
}

func TestContentDisposition(t *testing.T) {
	got := ContentDisposition("Müller_ISO (1).pdf")
	want := `attachment; filename="M_ller_ISO (1).pdf"; filename*=UTF-8''M%C3%BCller_ISO%20(1).pdf`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}
