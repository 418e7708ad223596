package domain

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusValid     Status = "valid"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	// StatusExpired is derived at read time from expiry_date and is never
	// written to any store or the ledger as a transition.
	StatusExpired Status = "expired"
)

// Ledger status codes as defined by the registry contract.
const (
	LedgerStatusValid     = 0
	LedgerStatusSuspended = 1
	LedgerStatusRevoked   = 2
	LedgerStatusExpired   = 3
)

func (s Status) LedgerCode() (int, error) {
	switch s {
	case StatusValid:
		return LedgerStatusValid, nil
	case StatusSuspended:
		return LedgerStatusSuspended, nil
	case StatusRevoked:
		return LedgerStatusRevoked, nil
	case StatusExpired:
		return LedgerStatusExpired, nil
	default:
		return 0, fmt.Errorf("status %q has no ledger code", s)
	}
}

func StatusFromLedgerCode(code int) (Status, error) {
	switch code {
	case LedgerStatusValid:
		return StatusValid, nil
	case LedgerStatusSuspended:
		return StatusSuspended, nil
	case LedgerStatusRevoked:
		return StatusRevoked, nil
	case LedgerStatusExpired:
		return StatusExpired, nil
	default:
		return "", fmt.Errorf("unknown ledger status code %d", code)
	}
}

// CanTransition reports whether a stored status transition is allowed.
// Transitions are one-directional except suspended -> valid (reinstatement).
// Expired is computed, never stored, so it is not a legal target here.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusPending
	case StatusPending:
		return to == StatusValid
	case StatusValid:
		return to == StatusSuspended || to == StatusRevoked
	case StatusSuspended:
		return to == StatusValid || to == StatusRevoked
	default:
		return false
	}
}

type Organization struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

type Standard struct {
	Number   string `json:"number"`
	Title    string `json:"title"`
	Version  string `json:"version"`
	Category string `json:"category"`
}

type Scope struct {
	Description string   `json:"description"`
	Sites       []string `json:"sites"`
}

type AuditInfo struct {
	AuditDate     time.Time `json:"audit_date"`
	Auditor       string    `json:"auditor"`
	AuditType     string    `json:"audit_type"`
	NextAuditDate time.Time `json:"next_audit_date"`
}

type Certificate struct {
	ID                string
	TenantID          string
	CertificateNumber string

	Organization Organization
	Standard     Standard
	Scope        Scope
	IssuerName   string
	IssuerCode   string
	Audit        AuditInfo

	IssuedDate       time.Time
	ExpiryDate       time.Time
	SuspendedDate    *time.Time
	RevokedDate      *time.Time
	Status           Status
	SuspensionReason string
	RevocationReason string

	LedgerTxHash string
	DocumentHash string
	MerkleRoot   string

	VerificationCode   string
	PubliclySearchable bool
	Tags               []string

	CreatedAt     time.Time
	UpdatedAt     time.Time
	CreatedBy     string
	LastUpdatedBy string
}

// IsExpired reports the derived expiry flag. Only a valid certificate can
// read as expired; suspended and revoked take precedence.
func (c Certificate) IsExpired(now time.Time) bool {
	return c.Status == StatusValid && now.After(c.ExpiryDate)
}

// EffectiveStatus folds the derived expiry flag into the stored status.
func (c Certificate) EffectiveStatus(now time.Time) Status {
	if c.IsExpired(now) {
		return StatusExpired
	}
	return c.Status
}

const numberSuffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewCertificateNumber builds the human-readable certificate number as
// {standardNumber}-{unixSeconds}-{random6}, uppercased. The number is
// immutable once assigned and unique per tenant.
func NewCertificateNumber(standardNumber string, now time.Time) (string, error) {
	standardNumber = strings.ToUpper(strings.TrimSpace(standardNumber))
	if standardNumber == "" {
		return "", &ValidationError{Field: "standard.number", Reason: "required"}
	}
	suffix, err := randomToken(6)
	if err != nil {
		return "", err
	}
	return standardNumber + "-" + strconv.FormatInt(now.Unix(), 10) + "-" + suffix, nil
}

// CertificateID derives the tenant-scoped identifier used on the ledger and
// in both stores.
func CertificateID(tenantID, certificateNumber string) string {
	return tenantID + "#" + certificateNumber
}

// NewVerificationCode returns a short public lookup token. It carries no
// entropy guarantees beyond collision resistance within a tenant.
func NewVerificationCode() (string, error) {
	return randomToken(10)
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = numberSuffixAlphabet[int(b)%len(numberSuffixAlphabet)]
	}
	return string(out), nil
}

// CertificateView is the denormalized, query-optimized copy held by the
// index store. Its Status field is a cache of ledger truth and may lag.
type CertificateView struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	CertificateNumber  string    `json:"certificate_number"`
	OrganizationName   string    `json:"organization_name"`
	StandardNumber     string    `json:"standard_number"`
	StandardTitle      string    `json:"standard_title"`
	ScopeDescription   string    `json:"scope_description"`
	Status             Status    `json:"status"`
	IssuedDate         time.Time `json:"issued_date"`
	ExpiryDate         time.Time `json:"expiry_date"`
	LedgerTxHash       string    `json:"ledger_tx_hash,omitempty"`
	DocumentHash       string    `json:"document_hash,omitempty"`
	VerificationCode   string    `json:"verification_code,omitempty"`
	PubliclySearchable bool      `json:"publicly_searchable"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (v CertificateView) IsExpired(now time.Time) bool {
	return v.Status == StatusValid && now.After(v.ExpiryDate)
}

func (v CertificateView) EffectiveStatus(now time.Time) Status {
	if v.IsExpired(now) {
		return StatusExpired
	}
	return v.Status
}

func ViewFromCertificate(c Certificate) CertificateView {
	return CertificateView{
		ID:                 c.ID,
		TenantID:           c.TenantID,
		CertificateNumber:  c.CertificateNumber,
		OrganizationName:   c.Organization.Name,
		StandardNumber:     c.Standard.Number,
		StandardTitle:      c.Standard.Title,
		ScopeDescription:   c.Scope.Description,
		Status:             c.Status,
		IssuedDate:         c.IssuedDate,
		ExpiryDate:         c.ExpiryDate,
		LedgerTxHash:       c.LedgerTxHash,
		DocumentHash:       c.DocumentHash,
		VerificationCode:   c.VerificationCode,
		PubliclySearchable: c.PubliclySearchable,
		UpdatedAt:          c.UpdatedAt,
	}
}

type IndexQuery struct {
	TenantID         string
	OrganizationName string
	StandardNumber   string
	Status           Status
	PublicOnly       bool
	PageSize         int
	PageToken        string
}

type IndexPage struct {
	Items         []CertificateView
	NextPageToken string
}

// CertificateIndex is the read-optimized secondary index. It is never the
// source of truth; writes happen only after ledger confirmation.
type CertificateIndex interface {
	Upsert(ctx context.Context, view CertificateView) error
	UpdateStatus(ctx context.Context, certificateID string, status Status, reason string, at time.Time) error
	Query(ctx context.Context, q IndexQuery) (IndexPage, error)
	GetByNumber(ctx context.Context, tenantID, certificateNumber string) (*CertificateView, error)
	GetByCode(ctx context.Context, verificationCode string) (*CertificateView, error)
}
