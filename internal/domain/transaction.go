package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Operation types recorded in the ledger transaction audit trail.
const (
	OpCreateCertificate = "create_certificate"
	OpUpdateStatus      = "update_status"
)

const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// LedgerTransaction is the audit row written immediately after every ledger
// submission, before confirmation. Rows are never deleted; a row moves
// pending -> confirmed or pending -> failed exactly once.
type LedgerTransaction struct {
	ID            string
	TenantID      string
	CertificateID string
	OperationType string
	Network       string
	Hash          string
	Status        string
	BlockNumber   int64
	Data          json.RawMessage
	ErrorDetail   string
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
}

type TxOutcome struct {
	Status      string
	BlockNumber int64
	ErrorDetail string
	ConfirmedAt time.Time
}

// TransactionRecorder persists the audit trail of ledger write attempts,
// independent of ledger and index state. It answers "did we already try to
// issue this certificate" without re-querying the ledger.
type TransactionRecorder interface {
	Record(ctx context.Context, tx LedgerTransaction) error
	Reconcile(ctx context.Context, txID string, outcome TxOutcome) error
	ListByCertificate(ctx context.Context, tenantID, certificateID string) ([]LedgerTransaction, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]LedgerTransaction, error)
	// LatestForOperation returns the most recent attempt for the certificate
	// and operation type, or ErrNotFound.
	LatestForOperation(ctx context.Context, tenantID, certificateID, operationType string) (*LedgerTransaction, error)
}
