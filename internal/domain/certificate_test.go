package domain

import (
	"strings"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusDraft, StatusPending},
		{StatusPending, StatusValid},
		{StatusValid, StatusSuspended},
		{StatusValid, StatusRevoked},
		{StatusSuspended, StatusValid},
		{StatusSuspended, StatusRevoked},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusRevoked, StatusValid},
		{StatusRevoked, StatusSuspended},
		{StatusValid, StatusDraft},
		{StatusValid, StatusExpired},
		{StatusSuspended, StatusExpired},
		{StatusDraft, StatusValid},
		{StatusPending, StatusSuspended},
		{StatusExpired, StatusValid},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestLedgerCodeRoundTrip(t *testing.T) {
	for _, status := range []Status{StatusValid, StatusSuspended, StatusRevoked, StatusExpired} {
		code, err := status.LedgerCode()
		if err != nil {
			t.Fatalf("LedgerCode(%s): %v", status, err)
		}
		back, err := StatusFromLedgerCode(code)
		if err != nil {
			t.Fatalf("StatusFromLedgerCode(%d): %v", code, err)
		}
		if back != status {
			t.Fatalf("round trip %s -> %d -> %s", status, code, back)
		}
	}

	if _, err := StatusDraft.LedgerCode(); err == nil {
		t.Fatal("draft must not have a ledger code")
	}
	if _, err := StatusPending.LedgerCode(); err == nil {
		t.Fatal("pending must not have a ledger code")
	}
	if _, err := StatusFromLedgerCode(42); err == nil {
		t.Fatal("unknown code must error")
	}
}

func TestNewCertificateNumber(t *testing.T) {
	now := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	number, err := NewCertificateNumber("iso-9001", now)
	if err != nil {
		t.Fatalf("NewCertificateNumber: %v", err)
	}

	if !strings.HasPrefix(number, "ISO-9001-1700000000-") {
		t.Fatalf("unexpected number %q", number)
	}
	suffix := number[len("ISO-9001-1700000000-"):]
	if len(suffix) != 6 {
		t.Fatalf("suffix %q should be 6 characters", suffix)
	}
	for _, r := range suffix {
		if !strings.ContainsRune(numberSuffixAlphabet, r) {
			t.Fatalf("suffix %q contains unexpected character %q", suffix, r)
		}
	}

	if _, err := NewCertificateNumber("  ", now); err == nil {
		t.Fatal("empty standard number must fail")
	}
}

func TestCertificateID(t *testing.T) {
	id := CertificateID("acme", "ISO-9001-1700000000-AB12CD")
	if id != "acme#ISO-9001-1700000000-AB12CD" {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name   string
		status Status
		expiry time.Time
		want   Status
	}{
		{"valid not expired", StatusValid, future, StatusValid},
		{"valid expired", StatusValid, past, StatusExpired},
		{"suspended past expiry stays suspended", StatusSuspended, past, StatusSuspended},
		{"revoked past expiry stays revoked", StatusRevoked, past, StatusRevoked},
		{"pending past expiry stays pending", StatusPending, past, StatusPending},
	}
	for _, tc := range cases {
		cert := Certificate{Status: tc.status, ExpiryDate: tc.expiry}
		if got := cert.EffectiveStatus(now); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestViewFromCertificate(t *testing.T) {
	cert := Certificate{
		ID:                 "acme#ISO-9001-1-AAAAAA",
		TenantID:           "acme",
		CertificateNumber:  "ISO-9001-1-AAAAAA",
		Organization:       Organization{Name: "Acme Manufacturing"},
		Standard:           Standard{Number: "ISO-9001", Title: "Quality management"},
		Scope:              Scope{Description: "Widget production"},
		Status:             StatusValid,
		VerificationCode:   "CODE123456",
		PubliclySearchable: true,
	}
	view := ViewFromCertificate(cert)
	if view.ID != cert.ID || view.TenantID != cert.TenantID {
		t.Fatal("identity fields not carried over")
	}
	if view.OrganizationName != "Acme Manufacturing" || view.StandardNumber != "ISO-9001" {
		t.Fatal("descriptive fields not carried over")
	}
	if !view.PubliclySearchable || view.VerificationCode != "CODE123456" {
		t.Fatal("search fields not carried over")
	}
}
