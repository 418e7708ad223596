package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"certledger/internal/domain"
	"certledger/internal/infra/merkle"
	"certledger/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IssueCertificate sequences archive, ledger submission, audit recording,
// and index upsert. The ledger is the authority: archive or submission
// failure aborts the issuance, while a confirmation timeout leaves the
// certificate pending and an index write failure is retried asynchronously.
type IssueCertificate struct {
	Archiver domain.DocumentArchiver
	Ledger   domain.LedgerClient
	Recorder domain.TransactionRecorder
	Index    domain.CertificateIndex

	Body    domain.CertificationBody
	Network string

	ConfirmationTimeout time.Duration
	Metrics             *metrics.Metrics
	Log                 *logrus.Logger
	Now                 func() time.Time
}

type IssueRequest struct {
	TenantID string
	Input    domain.CertificateInput
	// CertificateNumber, when set, retries a previous issuance under the
	// same number instead of minting a new one. The transaction recorder is
	// consulted before any ledger write so no duplicate entry is created.
	CertificateNumber string
}

type IssueResponse struct {
	Certificate   domain.Certificate
	TransactionID string
	Confirmed     bool
}

type IssueBatchRequest struct {
	TenantID string
	Inputs   []domain.CertificateInput
}

type BatchItem struct {
	Certificate   domain.Certificate
	TransactionID string
	Confirmed     bool
	Error         string
}

type IssueBatchResponse struct {
	MerkleRoot string
	Items      []BatchItem
}

func (uc *IssueCertificate) Execute(ctx context.Context, req IssueRequest) (*IssueResponse, error) {
	cert, err := uc.buildCertificate(req)
	if err != nil {
		uc.Metrics.ObserveIssuance("validation_failed")
		return nil, &domain.IssuanceError{Stage: domain.StageValidate, Err: err}
	}

	// An earlier live attempt under the same number owns the published
	// verification code and the archived document; it must be resumed with
	// those exact values, never repeated with regenerated ones.
	if resp, err := uc.resumePrior(ctx, &cert); resp != nil || err != nil {
		return resp, err
	}

	if err := uc.archive(ctx, &cert); err != nil {
		return nil, err
	}

	txID, confirmed, err := uc.submitAndConfirm(ctx, &cert, "")
	if err != nil {
		return nil, err
	}
	return &IssueResponse{Certificate: cert, TransactionID: txID, Confirmed: confirmed}, nil
}

// ExecuteBatch issues several certificates anchored to a common merkle root
// over their document hashes. Validation failure of any input rejects the
// whole batch before side effects; later per-item failures do not stop the
// remaining items.
func (uc *IssueCertificate) ExecuteBatch(ctx context.Context, req IssueBatchRequest) (*IssueBatchResponse, error) {
	if len(req.Inputs) == 0 {
		return nil, &domain.IssuanceError{
			Stage: domain.StageValidate,
			Err:   &domain.ValidationError{Field: "certificates", Reason: "required"},
		}
	}

	certs := make([]domain.Certificate, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		cert, err := uc.buildCertificate(IssueRequest{TenantID: req.TenantID, Input: input})
		if err != nil {
			uc.Metrics.ObserveIssuance("validation_failed")
			return nil, &domain.IssuanceError{Stage: domain.StageValidate, Err: err}
		}
		certs = append(certs, cert)
	}

	docHashes := make([]string, len(certs))
	for i := range certs {
		if err := uc.archive(ctx, &certs[i]); err != nil {
			return nil, err
		}
		docHashes[i] = certs[i].DocumentHash
	}

	root, err := merkle.RootHex(docHashes)
	if err != nil {
		return nil, &domain.IssuanceError{Stage: domain.StageSubmit, Err: err}
	}

	resp := &IssueBatchResponse{MerkleRoot: root, Items: make([]BatchItem, 0, len(certs))}
	for i := range certs {
		txID, confirmed, err := uc.submitAndConfirm(ctx, &certs[i], root)
		item := BatchItem{Certificate: certs[i], TransactionID: txID, Confirmed: confirmed}
		if err != nil {
			item.Error = err.Error()
		}
		resp.Items = append(resp.Items, item)
	}
	return resp, nil
}

func (uc *IssueCertificate) buildCertificate(req IssueRequest) (domain.Certificate, error) {
	cert, err := domain.NewCertificate(req.TenantID, req.Input, uc.now())
	if err != nil {
		return domain.Certificate{}, err
	}
	if req.CertificateNumber != "" {
		cert.CertificateNumber = strings.ToUpper(strings.TrimSpace(req.CertificateNumber))
		cert.ID = domain.CertificateID(cert.TenantID, cert.CertificateNumber)
	}
	return cert, nil
}

func (uc *IssueCertificate) archive(ctx context.Context, cert *domain.Certificate) error {
	contentHash, err := uc.Archiver.Archive(ctx, *cert)
	if err != nil {
		uc.Metrics.ObserveIssuance("archive_failed")
		return &domain.IssuanceError{Stage: domain.StageArchive, Err: err}
	}
	cert.DocumentHash = contentHash
	return nil
}

// resumePrior consults the transaction recorder for an earlier issuance of
// the same certificate number. The first publication fixed the verification
// code, the dates, and the archived document, so a confirmed or still
// pending attempt is rebuilt from the snapshot recorded with its
// transaction and the regenerated certificate is discarded. A failed
// attempt, or no attempt at all, lets issuance start from scratch.
func (uc *IssueCertificate) resumePrior(ctx context.Context, cert *domain.Certificate) (*IssueResponse, error) {
	prior, err := uc.Recorder.LatestForOperation(ctx, cert.TenantID, cert.ID, domain.OpCreateCertificate)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, &domain.IssuanceError{Stage: domain.StageSubmit, Err: err}
	}
	if prior.Status == domain.TxStatusFailed {
		// A failed attempt never published anything; submitting fresh data
		// under the same number is safe.
		return nil, nil
	}

	if err := uc.restorePublished(ctx, cert, prior); err != nil {
		return nil, &domain.IssuanceError{Stage: domain.StageSubmit, Err: err}
	}
	cert.LedgerTxHash = prior.Hash

	if prior.Status == domain.TxStatusConfirmed {
		// The index already mirrors the confirmed certificate; rewriting the
		// row here could only replace published data.
		cert.Status = domain.StatusValid
		uc.Metrics.ObserveIssuance("already_confirmed")
		return &IssueResponse{Certificate: *cert, TransactionID: prior.ID, Confirmed: true}, nil
	}

	cert.Status = domain.StatusPending
	uc.logger().WithFields(logrus.Fields{
		"certificate_id": cert.ID,
		"tx_hash":        prior.Hash,
	}).Info("resuming confirmation wait for earlier submission")
	txID, confirmed, err := uc.awaitAndFinish(ctx, prior.ID, cert, uc.now())
	if err != nil {
		return nil, err
	}
	return &IssueResponse{Certificate: *cert, TransactionID: txID, Confirmed: confirmed}, nil
}

// restorePublished overwrites the regenerated fields of cert with the values
// the prior attempt put on the ledger, preferring the transaction snapshot
// and falling back to the index row.
func (uc *IssueCertificate) restorePublished(ctx context.Context, cert *domain.Certificate, prior *domain.LedgerTransaction) error {
	var view *domain.CertificateView
	if snap, err := decodeSnapshot(prior.Data); err == nil && snap != nil {
		view = snap.View
	}
	if view == nil {
		existing, err := uc.Index.GetByNumber(ctx, cert.TenantID, cert.CertificateNumber)
		if err != nil {
			return fmt.Errorf("prior attempt %s has no snapshot and no index row: %w", prior.ID, err)
		}
		view = existing
	}
	cert.VerificationCode = view.VerificationCode
	cert.DocumentHash = view.DocumentHash
	cert.IssuedDate = view.IssuedDate
	cert.ExpiryDate = view.ExpiryDate
	cert.PubliclySearchable = view.PubliclySearchable
	cert.UpdatedAt = view.UpdatedAt
	return nil
}

// submitAndConfirm performs the ledger write and everything after it.
// Callers have ruled out a live earlier attempt for this number, either
// through resumePrior or by minting the number in the same call, so the
// submission here is the first one that can reach the ledger.
func (uc *IssueCertificate) submitAndConfirm(ctx context.Context, cert *domain.Certificate, auxHash string) (string, bool, error) {
	cert.MerkleRoot = auxHash

	if err := uc.Ledger.EnsureBodyRegistered(ctx, uc.Body); err != nil {
		return "", false, &domain.IssuanceError{Stage: domain.StageSubmit, Err: err}
	}

	cert.Status = domain.StatusPending
	submittedAt := uc.now()
	txHash, err := uc.Ledger.Issue(ctx, domain.CertificateRegistration{
		CertificateID:      cert.ID,
		TenantID:           cert.TenantID,
		OrganizationName:   cert.Organization.Name,
		StandardNumber:     cert.Standard.Number,
		ExpiryEpochSeconds: cert.ExpiryDate.Unix(),
		ContentHash:        cert.DocumentHash,
		AuxHash:            auxHash,
	})
	if err != nil {
		uc.recordFailedSubmission(ctx, *cert, err)
		uc.Metrics.ObserveLedgerSubmission(domain.OpCreateCertificate, "error")
		uc.Metrics.ObserveIssuance("submit_failed")
		return "", false, &domain.IssuanceError{Stage: domain.StageSubmit, Err: err}
	}
	cert.LedgerTxHash = txHash
	uc.Metrics.ObserveLedgerSubmission(domain.OpCreateCertificate, "submitted")

	record := domain.LedgerTransaction{
		ID:            uuid.NewString(),
		TenantID:      cert.TenantID,
		CertificateID: cert.ID,
		OperationType: domain.OpCreateCertificate,
		Network:       uc.Network,
		Hash:          txHash,
		Status:        domain.TxStatusPending,
		Data:          createSnapshot(domain.ViewFromCertificate(*cert)),
		CreatedAt:     submittedAt,
	}
	if err := uc.Recorder.Record(ctx, record); err != nil {
		// The ledger write already happened; losing the audit row must not
		// lose the certificate. The confirmation worker cannot pick this one
		// up, so finish inline.
		uc.logger().WithError(err).WithField("tx_hash", txHash).
			Error("failed to record ledger transaction")
	}

	return uc.awaitAndFinish(ctx, record.ID, cert, submittedAt)
}

func (uc *IssueCertificate) awaitAndFinish(ctx context.Context, txID string, cert *domain.Certificate, submittedAt time.Time) (string, bool, error) {
	conf, err := uc.Ledger.AwaitConfirmation(ctx, cert.LedgerTxHash, uc.ConfirmationTimeout)
	switch {
	case err == nil:
		uc.Metrics.ObserveConfirmationLatency(uc.now().Sub(submittedAt))
		uc.reconcile(ctx, txID, domain.TxOutcome{
			Status:      domain.TxStatusConfirmed,
			BlockNumber: conf.BlockNumber,
			ConfirmedAt: conf.ConfirmedAt,
		})
		cert.Status = domain.StatusValid
		cert.UpdatedAt = conf.ConfirmedAt
		uc.upsertIndex(ctx, *cert)
		uc.Metrics.ObserveIssuance("confirmed")
		return txID, true, nil

	case errors.Is(err, domain.ErrLedgerReverted):
		uc.reconcile(ctx, txID, domain.TxOutcome{
			Status:      domain.TxStatusFailed,
			ErrorDetail: err.Error(),
			ConfirmedAt: uc.now(),
		})
		uc.Metrics.ObserveIssuance("reverted")
		return txID, false, &domain.IssuanceError{Stage: domain.StageConfirm, Err: err}

	case errors.Is(err, domain.ErrConfirmationTimeout):
		// Pending is a legitimate outcome; the confirmation worker or a
		// retried issue call resolves it later.
		uc.Metrics.ObserveIssuance("pending")
		return txID, false, nil

	default:
		uc.logger().WithError(err).WithField("tx_hash", cert.LedgerTxHash).
			Warn("confirmation check failed, leaving transaction pending")
		uc.Metrics.ObserveIssuance("pending")
		return txID, false, nil
	}
}

func (uc *IssueCertificate) recordFailedSubmission(ctx context.Context, cert domain.Certificate, cause error) {
	record := domain.LedgerTransaction{
		ID:            uuid.NewString(),
		TenantID:      cert.TenantID,
		CertificateID: cert.ID,
		OperationType: domain.OpCreateCertificate,
		Network:       uc.Network,
		Status:        domain.TxStatusFailed,
		Data:          createSnapshot(domain.ViewFromCertificate(cert)),
		ErrorDetail:   cause.Error(),
		CreatedAt:     uc.now(),
	}
	if err := uc.Recorder.Record(ctx, record); err != nil {
		uc.logger().WithError(err).WithField("certificate_id", cert.ID).
			Error("failed to record rejected submission")
	}
}

func (uc *IssueCertificate) reconcile(ctx context.Context, txID string, outcome domain.TxOutcome) {
	if err := uc.Recorder.Reconcile(ctx, txID, outcome); err != nil {
		uc.logger().WithError(err).WithField("tx_id", txID).
			Error("failed to reconcile ledger transaction")
	}
}

// upsertIndex is best effort: the ledger already holds the truth, and a
// missed index write only delays searchability until the next reconcile.
func (uc *IssueCertificate) upsertIndex(ctx context.Context, cert domain.Certificate) {
	if err := uc.Index.Upsert(ctx, domain.ViewFromCertificate(cert)); err != nil {
		uc.logger().WithError(err).WithField("certificate_id", cert.ID).
			Error("index upsert failed, certificate remains valid on ledger")
	}
}

func (uc *IssueCertificate) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now().UTC()
}

func (uc *IssueCertificate) logger() *logrus.Logger {
	if uc.Log != nil {
		return uc.Log
	}
	return logrus.StandardLogger()
}
