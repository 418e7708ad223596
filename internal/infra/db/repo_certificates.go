package db

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"certledger/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultPageSize = 50

// CertificateIndexRepository holds the denormalized search copy of
// ledger-confirmed certificates. It is a cache of ledger truth, written
// only after confirmation.
type CertificateIndexRepository struct {
	db *gorm.DB
}

func NewCertificateIndexRepository(db *gorm.DB) *CertificateIndexRepository {
	return &CertificateIndexRepository{db: db}
}

func (r *CertificateIndexRepository) Upsert(ctx context.Context, view domain.CertificateView) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if view.ID == "" || view.TenantID == "" {
		return errors.New("id and tenant_id are required")
	}
	if view.CertificateNumber == "" {
		return errors.New("certificate_number is required")
	}
	updatedAt := view.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	model := CertificateIndexModel{
		ID:                 view.ID,
		TenantID:           view.TenantID,
		CertificateNumber:  view.CertificateNumber,
		OrganizationName:   view.OrganizationName,
		StandardNumber:     view.StandardNumber,
		StandardTitle:      view.StandardTitle,
		ScopeDescription:   view.ScopeDescription,
		Status:             string(view.Status),
		IssuedDate:         view.IssuedDate,
		ExpiryDate:         view.ExpiryDate,
		LedgerTxHash:       view.LedgerTxHash,
		DocumentHash:       view.DocumentHash,
		VerificationCode:   view.VerificationCode,
		PubliclySearchable: view.PubliclySearchable,
		UpdatedAt:          updatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

func (r *CertificateIndexRepository) UpdateStatus(ctx context.Context, certificateID string, status domain.Status, reason string, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if certificateID == "" {
		return errors.New("certificate_id is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	result := r.db.WithContext(ctx).
		Model(&CertificateIndexModel{}).
		Where("id = ?", certificateID).
		Updates(map[string]any{
			"status":        string(status),
			"status_reason": reason,
			"updated_at":    at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Query pages forward through matching certificates ordered by certificate
// number. The continuation token is an opaque cursor, not an offset.
func (r *CertificateIndexRepository) Query(ctx context.Context, q domain.IndexQuery) (domain.IndexPage, error) {
	if r.db == nil {
		return domain.IndexPage{}, errDBUnavailable
	}
	if q.TenantID == "" {
		return domain.IndexPage{}, errors.New("tenant_id is required")
	}
	pageSize := q.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = defaultPageSize
	}

	tx := r.db.WithContext(ctx).
		Model(&CertificateIndexModel{}).
		Where("tenant_id = ?", q.TenantID)
	if q.OrganizationName != "" {
		tx = tx.Where("organization_name ILIKE ?", "%"+escapeLike(q.OrganizationName)+"%")
	}
	if q.StandardNumber != "" {
		tx = tx.Where("standard_number = ?", q.StandardNumber)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	if q.PublicOnly {
		tx = tx.Where("publicly_searchable = ?", true)
	}
	if q.PageToken != "" {
		cursor, err := decodeCursor(q.PageToken)
		if err != nil {
			return domain.IndexPage{}, err
		}
		tx = tx.Where("certificate_number > ?", cursor)
	}

	var models []CertificateIndexModel
	if err := tx.Order("certificate_number ASC").Limit(pageSize + 1).Find(&models).Error; err != nil {
		return domain.IndexPage{}, err
	}

	page := domain.IndexPage{}
	for i, model := range models {
		if i == pageSize {
			page.NextPageToken = encodeCursor(models[i-1].CertificateNumber)
			break
		}
		page.Items = append(page.Items, viewFromModel(model))
	}
	return page, nil
}

func (r *CertificateIndexRepository) GetByNumber(ctx context.Context, tenantID, certificateNumber string) (*domain.CertificateView, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if tenantID == "" || certificateNumber == "" {
		return nil, errors.New("tenant_id and certificate_number are required")
	}
	var model CertificateIndexModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND certificate_number = ?", tenantID, certificateNumber).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	view := viewFromModel(model)
	return &view, nil
}

func (r *CertificateIndexRepository) GetByCode(ctx context.Context, verificationCode string) (*domain.CertificateView, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if verificationCode == "" {
		return nil, errors.New("verification_code is required")
	}
	var model CertificateIndexModel
	err := r.db.WithContext(ctx).
		Where("verification_code = ?", verificationCode).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	view := viewFromModel(model)
	return &view, nil
}

func viewFromModel(model CertificateIndexModel) domain.CertificateView {
	return domain.CertificateView{
		ID:                 model.ID,
		TenantID:           model.TenantID,
		CertificateNumber:  model.CertificateNumber,
		OrganizationName:   model.OrganizationName,
		StandardNumber:     model.StandardNumber,
		StandardTitle:      model.StandardTitle,
		ScopeDescription:   model.ScopeDescription,
		Status:             domain.Status(model.Status),
		IssuedDate:         model.IssuedDate,
		ExpiryDate:         model.ExpiryDate,
		LedgerTxHash:       model.LedgerTxHash,
		DocumentHash:       model.DocumentHash,
		VerificationCode:   model.VerificationCode,
		PubliclySearchable: model.PubliclySearchable,
		UpdatedAt:          model.UpdatedAt,
	}
}

func encodeCursor(certificateNumber string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(certificateNumber))
}

func decodeCursor(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errors.New("invalid page token")
	}
	return string(raw), nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

var _ domain.CertificateIndex = (*CertificateIndexRepository)(nil)
