package domain

import (
	"context"
	"time"
)

// CertificateRegistration is the payload registered on the ledger. AuxHash
// carries the batch merkle root when the certificate was issued as part of
// a batch, empty otherwise.
type CertificateRegistration struct {
	CertificateID      string
	TenantID           string
	OrganizationName   string
	StandardNumber     string
	ExpiryEpochSeconds int64
	ContentHash        string
	AuxHash            string
}

// LedgerRecord is the authoritative record read back from the ledger.
type LedgerRecord struct {
	CertificateID      string
	OrganizationName   string
	StandardNumber     string
	ExpiryEpochSeconds int64
	ContentHash        string
	AuxHash            string
	StatusCode         int
	IssuerBodyCode     string
	RegisteredAt       time.Time
}

func (r LedgerRecord) Status() (Status, error) {
	return StatusFromLedgerCode(r.StatusCode)
}

type Confirmation struct {
	TxHash      string
	BlockNumber int64
	ConfirmedAt time.Time
}

type CertificationBody struct {
	Code string
	Name string
}

// LedgerClient talks to the certificate registry contract. Writes that do
// not reach inclusion are retryable; once included they are irreversible
// and only compensating status updates remain.
type LedgerClient interface {
	// EnsureBodyRegistered provisions the issuing certification body once.
	// Registration state is checked against the ledger itself, never an
	// in-process flag, so multiple instances agree.
	EnsureBodyRegistered(ctx context.Context, body CertificationBody) error

	// Issue estimates the resource cost, applies a safety margin, and
	// submits the registration. It returns as soon as the send step
	// completes; confirmation is a separate step.
	Issue(ctx context.Context, reg CertificateRegistration) (string, error)

	// AwaitConfirmation polls for inclusion until the timeout. It returns
	// ErrLedgerReverted when the transaction was included but rejected, and
	// ErrConfirmationTimeout when no confirmation arrived in time - the
	// caller should re-poll, not resubmit.
	AwaitConfirmation(ctx context.Context, txHash string, timeout time.Duration) (Confirmation, error)

	// UpdateStatus submits a status change. The ledger enforces that only
	// the issuing identity (or an admin identity) may do this; rejection is
	// surfaced as ErrUnauthorized.
	UpdateStatus(ctx context.Context, certificateID string, status Status) (string, error)

	GetCertificate(ctx context.Context, certificateID string) (*LedgerRecord, error)

	// IsValid returns false both for "not found" and for
	// expired/suspended/revoked. Callers needing the distinction must use
	// GetCertificate.
	IsValid(ctx context.Context, certificateID string) (bool, error)
}
