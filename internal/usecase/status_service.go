package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"certledger/internal/domain"
	"certledger/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StatusService drives stored status transitions: suspend, revoke, and
// reinstate. Every transition is policy-gated, written to the ledger first,
// and only reflected in the index after confirmation.
type StatusService struct {
	Ledger   domain.LedgerClient
	Recorder domain.TransactionRecorder
	Index    domain.CertificateIndex
	Policy   domain.TransitionPolicy

	Network             string
	ConfirmationTimeout time.Duration
	Metrics             *metrics.Metrics
	Log                 *logrus.Logger
	Now                 func() time.Time
}

type StatusChangeRequest struct {
	TenantID          string
	CertificateNumber string
	To                domain.Status
	Reason            string
	ActorRole         string
	ActorID           string
}

type StatusChangeResponse struct {
	CertificateID string
	TxHash        string
	TransactionID string
	Status        domain.Status
	Confirmed     bool
}

func (uc *StatusService) Execute(ctx context.Context, req StatusChangeRequest) (*StatusChangeResponse, error) {
	if req.TenantID == "" {
		return nil, &domain.ValidationError{Field: "tenant_id", Reason: "required"}
	}
	number := strings.ToUpper(strings.TrimSpace(req.CertificateNumber))
	if number == "" {
		return nil, &domain.ValidationError{Field: "certificate_number", Reason: "required"}
	}

	view, err := uc.Index.GetByNumber(ctx, req.TenantID, number)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(view.Status, req.To) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, view.Status, req.To)
	}

	decision, err := uc.Policy.Evaluate(ctx, domain.TransitionRequest{
		TenantID:      req.TenantID,
		CertificateID: view.ID,
		From:          view.Status,
		To:            req.To,
		Reason:        req.Reason,
		ActorRole:     req.ActorRole,
		ActorID:       req.ActorID,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransitionDenied, strings.Join(decision.Reasons, "; "))
	}

	submittedAt := uc.now()
	txHash, err := uc.Ledger.UpdateStatus(ctx, view.ID, req.To)
	if err != nil {
		uc.Metrics.ObserveLedgerSubmission(domain.OpUpdateStatus, "error")
		return nil, err
	}
	uc.Metrics.ObserveLedgerSubmission(domain.OpUpdateStatus, "submitted")

	record := domain.LedgerTransaction{
		ID:            uuid.NewString(),
		TenantID:      req.TenantID,
		CertificateID: view.ID,
		OperationType: domain.OpUpdateStatus,
		Network:       uc.Network,
		Hash:          txHash,
		Status:        domain.TxStatusPending,
		Data:          statusSnapshot(view.ID, req.To, req.Reason),
		CreatedAt:     submittedAt,
	}
	if err := uc.Recorder.Record(ctx, record); err != nil {
		uc.logger().WithError(err).WithField("tx_hash", txHash).
			Error("failed to record status transaction")
	}

	resp := &StatusChangeResponse{
		CertificateID: view.ID,
		TxHash:        txHash,
		TransactionID: record.ID,
		Status:        view.Status,
	}

	conf, err := uc.Ledger.AwaitConfirmation(ctx, txHash, uc.ConfirmationTimeout)
	switch {
	case err == nil:
		uc.Metrics.ObserveConfirmationLatency(uc.now().Sub(submittedAt))
		if err := uc.Recorder.Reconcile(ctx, record.ID, domain.TxOutcome{
			Status:      domain.TxStatusConfirmed,
			BlockNumber: conf.BlockNumber,
			ConfirmedAt: conf.ConfirmedAt,
		}); err != nil {
			uc.logger().WithError(err).WithField("tx_id", record.ID).
				Error("failed to reconcile status transaction")
		}
		if err := uc.Index.UpdateStatus(ctx, view.ID, req.To, req.Reason, conf.ConfirmedAt); err != nil {
			uc.logger().WithError(err).WithField("certificate_id", view.ID).
				Error("index status update failed, ledger already reflects transition")
		}
		uc.Metrics.ObserveStatusTransition(string(req.To))
		resp.Status = req.To
		resp.Confirmed = true
		return resp, nil

	case errors.Is(err, domain.ErrLedgerReverted):
		if err := uc.Recorder.Reconcile(ctx, record.ID, domain.TxOutcome{
			Status:      domain.TxStatusFailed,
			ErrorDetail: err.Error(),
			ConfirmedAt: uc.now(),
		}); err != nil {
			uc.logger().WithError(err).WithField("tx_id", record.ID).
				Error("failed to reconcile reverted status transaction")
		}
		return nil, err

	case errors.Is(err, domain.ErrConfirmationTimeout):
		// The index keeps the old status until the confirmation worker
		// observes inclusion and applies the recorded transition.
		return resp, nil

	default:
		uc.logger().WithError(err).WithField("tx_hash", txHash).
			Warn("status confirmation check failed, leaving transaction pending")
		return resp, nil
	}
}

func (uc *StatusService) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now().UTC()
}

func (uc *StatusService) logger() *logrus.Logger {
	if uc.Log != nil {
		return uc.Log
	}
	return logrus.StandardLogger()
}
