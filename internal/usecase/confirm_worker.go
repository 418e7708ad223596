package usecase

import (
	"context"
	"errors"
	"time"

	"certledger/internal/domain"
	"certledger/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval = 15 * time.Second
	defaultSweepBatch    = 50
	defaultCheckTimeout  = 5 * time.Second
)

// ConfirmWorker resolves ledger transactions left pending by confirmation
// timeouts or process restarts. Each sweep re-checks pending rows against
// the ledger and replays the recorded side effect on confirmation, so a
// crash between submission and confirmation loses nothing.
type ConfirmWorker struct {
	Recorder domain.TransactionRecorder
	Ledger   domain.LedgerClient
	Index    domain.CertificateIndex

	Interval     time.Duration
	BatchSize    int
	CheckTimeout time.Duration
	Metrics      *metrics.Metrics
	Log          *logrus.Logger
}

// Run sweeps until the context is cancelled.
func (w *ConfirmWorker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger().WithField("interval", interval.String()).Info("confirmation worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger().Info("confirmation worker stopped")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger().WithError(err).Warn("confirmation sweep failed")
			}
		}
	}
}

// Sweep processes one batch of pending transactions.
func (w *ConfirmWorker) Sweep(ctx context.Context) error {
	batch := w.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	pending, err := w.Recorder.ListByStatus(ctx, domain.TxStatusPending, batch)
	if err != nil {
		return err
	}
	w.Metrics.SetPendingTransactions(len(pending))

	for _, tx := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.resolve(ctx, tx)
	}
	return nil
}

func (w *ConfirmWorker) resolve(ctx context.Context, tx domain.LedgerTransaction) {
	log := w.logger().WithFields(logrus.Fields{
		"tx_id":          tx.ID,
		"tx_hash":        tx.Hash,
		"certificate_id": tx.CertificateID,
		"operation":      tx.OperationType,
	})
	if tx.Hash == "" {
		// Submission never produced a hash; nothing to wait for.
		w.reconcile(ctx, tx.ID, domain.TxOutcome{
			Status:      domain.TxStatusFailed,
			ErrorDetail: "no transaction hash recorded",
			ConfirmedAt: time.Now().UTC(),
		}, log)
		return
	}

	timeout := w.CheckTimeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	conf, err := w.Ledger.AwaitConfirmation(ctx, tx.Hash, timeout)
	switch {
	case err == nil:
		w.reconcile(ctx, tx.ID, domain.TxOutcome{
			Status:      domain.TxStatusConfirmed,
			BlockNumber: conf.BlockNumber,
			ConfirmedAt: conf.ConfirmedAt,
		}, log)
		w.Metrics.ObserveConfirmationLatency(conf.ConfirmedAt.Sub(tx.CreatedAt))
		w.applySideEffect(ctx, tx, conf, log)
		log.Info("pending transaction confirmed")

	case errors.Is(err, domain.ErrLedgerReverted):
		w.reconcile(ctx, tx.ID, domain.TxOutcome{
			Status:      domain.TxStatusFailed,
			ErrorDetail: err.Error(),
			ConfirmedAt: time.Now().UTC(),
		}, log)
		log.Warn("pending transaction reverted")

	case errors.Is(err, domain.ErrConfirmationTimeout):
		// Still pending; the next sweep tries again.

	default:
		log.WithError(err).Warn("could not check transaction status")
	}
}

// applySideEffect finishes the operation captured in the transaction's
// snapshot. Index writes stay idempotent, so replaying one that already
// happened inline is harmless.
func (w *ConfirmWorker) applySideEffect(ctx context.Context, tx domain.LedgerTransaction, conf domain.Confirmation, log *logrus.Entry) {
	snap, err := decodeSnapshot(tx.Data)
	if err != nil {
		log.WithError(err).Error("transaction snapshot is unreadable")
		return
	}
	if snap == nil {
		return
	}

	switch snap.Operation {
	case domain.OpCreateCertificate:
		if snap.View == nil {
			log.Error("create snapshot has no certificate view")
			return
		}
		view := *snap.View
		view.Status = domain.StatusValid
		view.LedgerTxHash = tx.Hash
		view.UpdatedAt = conf.ConfirmedAt
		if err := w.Index.Upsert(ctx, view); err != nil {
			log.WithError(err).Error("index upsert failed after confirmation")
		}

	case domain.OpUpdateStatus:
		if err := w.Index.UpdateStatus(ctx, snap.CertificateID, snap.Status, snap.Reason, conf.ConfirmedAt); err != nil {
			log.WithError(err).Error("index status update failed after confirmation")
		}

	default:
		log.WithField("snapshot_operation", snap.Operation).Warn("unknown snapshot operation")
	}
}

func (w *ConfirmWorker) reconcile(ctx context.Context, txID string, outcome domain.TxOutcome, log *logrus.Entry) {
	if err := w.Recorder.Reconcile(ctx, txID, outcome); err != nil {
		log.WithError(err).Error("failed to reconcile transaction")
	}
}

func (w *ConfirmWorker) logger() *logrus.Logger {
	if w.Log != nil {
		return w.Log
	}
	return logrus.StandardLogger()
}
