package domain

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CertificateInput is the issuance payload accepted from callers. Validation
// failures are local and side-effect free.
type CertificateInput struct {
	Organization       Organization `json:"organization"`
	Standard           Standard     `json:"standard"`
	Scope              Scope        `json:"scope"`
	IssuerName         string       `json:"issuer_name" validate:"required"`
	IssuerCode         string       `json:"issuer_code" validate:"required"`
	Audit              AuditInfo    `json:"audit_info"`
	IssuedDate         time.Time    `json:"issued_date"`
	ExpiryDate         time.Time    `json:"expiry_date"`
	PubliclySearchable bool         `json:"publicly_searchable"`
	Tags               []string     `json:"tags"`
	CreatedBy          string       `json:"created_by"`
}

var inputValidator = newInputValidator()

func newInputValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateInput checks the required fields and temporal invariants, naming
// the first offending field.
func ValidateInput(in CertificateInput, now time.Time) error {
	if strings.TrimSpace(in.Organization.Name) == "" {
		return &ValidationError{Field: "organization.name", Reason: "required"}
	}
	if strings.TrimSpace(in.Standard.Number) == "" {
		return &ValidationError{Field: "standard.number", Reason: "required"}
	}
	if strings.TrimSpace(in.Scope.Description) == "" {
		return &ValidationError{Field: "scope.description", Reason: "required"}
	}
	if in.Audit.AuditDate.IsZero() {
		return &ValidationError{Field: "audit_info.audit_date", Reason: "required"}
	}
	if strings.TrimSpace(in.Audit.Auditor) == "" {
		return &ValidationError{Field: "audit_info.auditor", Reason: "required"}
	}
	if in.ExpiryDate.IsZero() {
		return &ValidationError{Field: "expiry_date", Reason: "required"}
	}
	if err := inputValidator.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return &ValidationError{Field: fieldErrs[0].Field(), Reason: "required"}
		}
		return err
	}

	issued := in.IssuedDate
	if issued.IsZero() {
		issued = now
	}
	if !in.ExpiryDate.After(issued) {
		return &ValidationError{Field: "expiry_date", Reason: "must be after issued_date"}
	}
	if !in.ExpiryDate.After(now) {
		return &ValidationError{Field: "expiry_date", Reason: "must be in the future"}
	}
	return nil
}

// NewCertificate builds a draft certificate from validated input. The
// certificate number and id are assigned here and never change.
func NewCertificate(tenantID string, in CertificateInput, now time.Time) (Certificate, error) {
	if tenantID == "" {
		return Certificate{}, &ValidationError{Field: "tenant_id", Reason: "required"}
	}
	if err := ValidateInput(in, now); err != nil {
		return Certificate{}, err
	}
	number, err := NewCertificateNumber(in.Standard.Number, now)
	if err != nil {
		return Certificate{}, err
	}
	code, err := NewVerificationCode()
	if err != nil {
		return Certificate{}, err
	}
	issued := in.IssuedDate
	if issued.IsZero() {
		issued = now
	}
	return Certificate{
		ID:                 CertificateID(tenantID, number),
		TenantID:           tenantID,
		CertificateNumber:  number,
		Organization:       in.Organization,
		Standard:           in.Standard,
		Scope:              in.Scope,
		IssuerName:         in.IssuerName,
		IssuerCode:         in.IssuerCode,
		Audit:              in.Audit,
		IssuedDate:         issued,
		ExpiryDate:         in.ExpiryDate,
		Status:             StatusDraft,
		VerificationCode:   code,
		PubliclySearchable: in.PubliclySearchable,
		Tags:               append([]string(nil), in.Tags...),
		CreatedAt:          now,
		UpdatedAt:          now,
		CreatedBy:          in.CreatedBy,
		LastUpdatedBy:      in.CreatedBy,
	}, nil
}
