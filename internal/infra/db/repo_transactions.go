package db

import (
	"context"
	"errors"
	"time"

	"certledger/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionRepository is the audit trail of ledger write attempts. Rows
// are append-only and reconcile exactly once.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Record(ctx context.Context, tx domain.LedgerTransaction) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if tx.ID == "" {
		return errors.New("transaction id is required")
	}
	if tx.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if tx.CertificateID == "" {
		return errors.New("certificate_id is required")
	}
	if tx.OperationType != domain.OpCreateCertificate && tx.OperationType != domain.OpUpdateStatus {
		return errors.New("unknown operation type: " + tx.OperationType)
	}
	status := tx.Status
	if status == "" {
		status = domain.TxStatusPending
	}
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := LedgerTransactionModel{
		ID:            tx.ID,
		TenantID:      tx.TenantID,
		CertificateID: tx.CertificateID,
		OperationType: tx.OperationType,
		Network:       tx.Network,
		Hash:          tx.Hash,
		Status:        status,
		BlockNumber:   int64PtrIfNotZero(tx.BlockNumber),
		Data:          copyBytes(tx.Data),
		ErrorDetail:   stringPtrIfNotEmpty(tx.ErrorDetail),
		CreatedAt:     createdAt,
		ConfirmedAt:   tx.ConfirmedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

// Reconcile moves a pending row to confirmed or failed. A row that already
// left pending is not touched again.
func (r *TransactionRepository) Reconcile(ctx context.Context, txID string, outcome domain.TxOutcome) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if txID == "" {
		return errors.New("transaction id is required")
	}
	if outcome.Status != domain.TxStatusConfirmed && outcome.Status != domain.TxStatusFailed {
		return errors.New("reconcile status must be confirmed or failed")
	}
	updates := map[string]any{
		"status": outcome.Status,
	}
	if outcome.BlockNumber != 0 {
		updates["block_number"] = outcome.BlockNumber
	}
	if outcome.ErrorDetail != "" {
		updates["error_detail"] = outcome.ErrorDetail
	}
	if outcome.Status == domain.TxStatusConfirmed {
		confirmedAt := outcome.ConfirmedAt
		if confirmedAt.IsZero() {
			confirmedAt = time.Now().UTC()
		}
		updates["confirmed_at"] = confirmedAt
	}
	result := r.db.WithContext(ctx).
		Model(&LedgerTransactionModel{}).
		Where("id = ? AND status = ?", txID, domain.TxStatusPending).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var existing LedgerTransactionModel
		err := r.db.WithContext(ctx).Where("id = ?", txID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		// Already reconciled; idempotent when the outcome agrees.
		if existing.Status == outcome.Status {
			return nil
		}
		return errors.New("transaction already reconciled to " + existing.Status)
	}
	return nil
}

func (r *TransactionRepository) ListByCertificate(ctx context.Context, tenantID, certificateID string) ([]domain.LedgerTransaction, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if tenantID == "" || certificateID == "" {
		return nil, errors.New("tenant_id and certificate_id are required")
	}
	var models []LedgerTransactionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND certificate_id = ?", tenantID, certificateID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return transactionsFromModels(models), nil
}

func (r *TransactionRepository) ListByStatus(ctx context.Context, status string, limit int) ([]domain.LedgerTransaction, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if status == "" {
		return nil, errors.New("status is required")
	}
	if limit <= 0 {
		limit = 100
	}
	var models []LedgerTransactionModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return transactionsFromModels(models), nil
}

func (r *TransactionRepository) LatestForOperation(ctx context.Context, tenantID, certificateID, operationType string) (*domain.LedgerTransaction, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model LedgerTransactionModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND certificate_id = ? AND operation_type = ?", tenantID, certificateID, operationType).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tx := transactionFromModel(model)
	return &tx, nil
}

func transactionsFromModels(models []LedgerTransactionModel) []domain.LedgerTransaction {
	out := make([]domain.LedgerTransaction, 0, len(models))
	for _, model := range models {
		out = append(out, transactionFromModel(model))
	}
	return out
}

func transactionFromModel(model LedgerTransactionModel) domain.LedgerTransaction {
	return domain.LedgerTransaction{
		ID:            model.ID,
		TenantID:      model.TenantID,
		CertificateID: model.CertificateID,
		OperationType: model.OperationType,
		Network:       model.Network,
		Hash:          model.Hash,
		Status:        model.Status,
		BlockNumber:   int64Value(model.BlockNumber),
		Data:          copyBytes(model.Data),
		ErrorDetail:   stringValue(model.ErrorDetail),
		CreatedAt:     model.CreatedAt,
		ConfirmedAt:   model.ConfirmedAt,
	}
}

var _ domain.TransactionRecorder = (*TransactionRepository)(nil)
