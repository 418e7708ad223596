package db

import "time"

type CertificateIndexModel struct {
	ID                 string `gorm:"primaryKey"`
	TenantID           string `gorm:"uniqueIndex:idx_tenant_number;not null"`
	CertificateNumber  string `gorm:"uniqueIndex:idx_tenant_number;not null"`
	OrganizationName   string `gorm:"index;not null"`
	StandardNumber     string `gorm:"index;not null"`
	StandardTitle      string
	ScopeDescription   string
	Status             string `gorm:"index;not null"`
	StatusReason       string
	IssuedDate         time.Time `gorm:"not null"`
	ExpiryDate         time.Time `gorm:"index;not null"`
	LedgerTxHash       string
	DocumentHash       string
	VerificationCode   string    `gorm:"uniqueIndex;not null"`
	PubliclySearchable bool      `gorm:"index;not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (CertificateIndexModel) TableName() string {
	return "certificate_index"
}

type LedgerTransactionModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	TenantID      string `gorm:"index;not null"`
	CertificateID string `gorm:"index;not null"`
	OperationType string `gorm:"not null"`
	Network       string `gorm:"not null"`
	Hash          string `gorm:"index;not null"`
	Status        string `gorm:"index;not null"`
	BlockNumber   *int64
	Data          []byte `gorm:"type:jsonb"`
	ErrorDetail   *string
	CreatedAt     time.Time `gorm:"not null"`
	ConfirmedAt   *time.Time
}

func (LedgerTransactionModel) TableName() string {
	return "ledger_transactions"
}
