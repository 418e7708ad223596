package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"certledger/internal/domain"
	"certledger/internal/infra/canonical"
)

const (
	// SchemaVersion identifies the archived document layout. Bump only with
	// a migration story: verification recomputes hashes over these bytes.
	SchemaVersion = "certledger.document.v1"

	issuerLabel = "certledger"
)

// BuildDocument renders the canonical archived form of a certificate. Only
// immutable certificate content goes in: status and cross-system hashes are
// excluded so re-archival after a retry produces identical bytes.
func BuildDocument(cert domain.Certificate) ([]byte, error) {
	doc := map[string]any{
		"schema":       SchemaVersion,
		"issuer_label": issuerLabel,
		"certificate": map[string]any{
			"id":                 cert.ID,
			"tenant_id":          cert.TenantID,
			"certificate_number": cert.CertificateNumber,
			"organization": map[string]any{
				"name":    cert.Organization.Name,
				"address": cert.Organization.Address,
				"email":   cert.Organization.Email,
				"phone":   cert.Organization.Phone,
			},
			"standard": map[string]any{
				"number":   cert.Standard.Number,
				"title":    cert.Standard.Title,
				"version":  cert.Standard.Version,
				"category": cert.Standard.Category,
			},
			"scope": map[string]any{
				"description": cert.Scope.Description,
				"sites":       cert.Scope.Sites,
			},
			"issuer_name": cert.IssuerName,
			"issuer_code": cert.IssuerCode,
			"audit_info": map[string]any{
				"audit_date":      formatTime(cert.Audit.AuditDate),
				"auditor":         cert.Audit.Auditor,
				"audit_type":      cert.Audit.AuditType,
				"next_audit_date": formatTime(cert.Audit.NextAuditDate),
			},
			"issued_date":         formatTime(cert.IssuedDate),
			"expiry_date":         formatTime(cert.ExpiryDate),
			"verification_code":   cert.VerificationCode,
			"publicly_searchable": cert.PubliclySearchable,
			"tags":                cert.Tags,
		},
	}
	return canonical.Marshal(doc)
}

// DocumentHash is the content identifier of the canonical document bytes.
func DocumentHash(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
