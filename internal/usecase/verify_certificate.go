package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"certledger/internal/domain"
	"certledger/internal/infra/archive"
	"certledger/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// VerifyCertificate resolves an identifier through the index, then treats
// the ledger as the authority and cross-checks the archived document hash
// against the hash the ledger recorded.
type VerifyCertificate struct {
	Index    domain.CertificateIndex
	Ledger   domain.LedgerClient
	Archiver domain.DocumentArchiver

	Cache    domain.VerificationCache
	CacheTTL time.Duration

	Metrics *metrics.Metrics
	Log     *logrus.Logger
	Now     func() time.Time
}

type VerifyRequest struct {
	// TenantID scopes number lookups. Code lookups are global because the
	// verification code is the public handle.
	TenantID       string
	Identifier     string
	IdentifierType string
}

func (uc *VerifyCertificate) Execute(ctx context.Context, req VerifyRequest) (*domain.VerificationResult, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return nil, &domain.ValidationError{Field: "identifier", Reason: "required"}
	}
	idType := req.IdentifierType
	if idType == "" {
		idType = domain.IdentifierNumber
	}
	if idType != domain.IdentifierNumber && idType != domain.IdentifierCode {
		return nil, &domain.ValidationError{Field: "type", Reason: "must be number or code"}
	}

	cacheKey := idType + ":" + req.TenantID + ":" + identifier
	if uc.Cache != nil {
		if cached, ok, err := uc.Cache.Get(ctx, cacheKey); err == nil && ok {
			uc.Metrics.ObserveVerification("cache_hit")
			return cached, nil
		}
	}

	result, cacheable := uc.verify(ctx, req.TenantID, identifier, idType)

	if uc.Cache != nil && cacheable {
		if err := uc.Cache.Put(ctx, cacheKey, *result, uc.CacheTTL); err != nil {
			uc.logger().WithError(err).Warn("failed to cache verification result")
		}
	}
	return result, nil
}

func (uc *VerifyCertificate) verify(ctx context.Context, tenantID, identifier, idType string) (*domain.VerificationResult, bool) {
	now := uc.now()

	view, err := uc.resolve(ctx, tenantID, identifier, idType)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.Metrics.ObserveVerification("not_found")
			return &domain.VerificationResult{
				Found:      false,
				Message:    "certificate not found",
				VerifiedAt: now,
			}, true
		}
		uc.logger().WithError(err).Warn("index lookup failed during verification")
		uc.Metrics.ObserveVerification("index_unavailable")
		return &domain.VerificationResult{
			Found:      false,
			Message:    "certificate index unavailable",
			VerifiedAt: now,
		}, false
	}

	record, err := uc.Ledger.GetCertificate(ctx, view.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Submitted but not yet confirmed. Reporting "not found" here
			// would hide a certificate the issuer can already see.
			uc.Metrics.ObserveVerification("pending")
			return &domain.VerificationResult{
				Found:           true,
				LedgerVerified:  false,
				IsExpired:       now.After(view.ExpiryDate),
				EffectiveStatus: view.EffectiveStatus(now),
				Message:         "pending confirmation",
				Certificate:     view,
				VerifiedAt:      now,
			}, true
		}
		// Degraded path: the index copy is still returned so the caller has
		// something to render, with the trust label downgraded.
		uc.Metrics.ObserveVerification("ledger_unavailable")
		return &domain.VerificationResult{
			Found:           true,
			LedgerVerified:  false,
			IsExpired:       now.After(view.ExpiryDate),
			EffectiveStatus: view.EffectiveStatus(now),
			Message:         "ledger unavailable",
			Certificate:     view,
			VerifiedAt:      now,
		}, false
	}

	result := &domain.VerificationResult{
		Found:          true,
		LedgerVerified: true,
		IsExpired:      now.Unix() > record.ExpiryEpochSeconds,
		Certificate:    view,
		VerifiedAt:     now,
	}

	ledgerStatus, err := record.Status()
	if err != nil {
		uc.logger().WithError(err).WithField("certificate_id", view.ID).
			Warn("ledger returned unknown status code")
		ledgerStatus = view.Status
	}
	result.EffectiveStatus = ledgerStatus
	if ledgerStatus == domain.StatusValid && result.IsExpired {
		result.EffectiveStatus = domain.StatusExpired
	}

	integrityOK, message, definitive := uc.checkIntegrity(ctx, record)
	result.IntegrityVerified = integrityOK
	result.Message = message
	switch {
	case integrityOK:
		uc.Metrics.ObserveVerification("verified")
	case definitive:
		uc.Metrics.ObserveVerification("integrity_mismatch")
	default:
		uc.Metrics.ObserveVerification("archive_unavailable")
	}
	return result, definitive
}

func (uc *VerifyCertificate) resolve(ctx context.Context, tenantID, identifier, idType string) (*domain.CertificateView, error) {
	if idType == domain.IdentifierCode {
		return uc.Index.GetByCode(ctx, identifier)
	}
	if tenantID == "" {
		return nil, &domain.ValidationError{Field: "tenant_id", Reason: "required for number lookups"}
	}
	return uc.Index.GetByNumber(ctx, tenantID, strings.ToUpper(identifier))
}

// checkIntegrity refetches the archived document and recomputes its hash.
// Disagreement with the ledger-recorded hash is a distinct, more severe
// outcome than an unverified certificate. The third return reports whether
// the outcome is definitive: a transient archive outage says nothing about
// the document itself and must not enter the verification cache.
func (uc *VerifyCertificate) checkIntegrity(ctx context.Context, record *domain.LedgerRecord) (bool, string, bool) {
	doc, err := uc.Archiver.Fetch(ctx, record.ContentHash)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			// The store is content-addressed, so a confirmed miss is a real
			// finding about this certificate, not an outage.
			return false, "archived document unavailable", true
		}
		uc.logger().WithError(err).WithField("content_hash", record.ContentHash).
			Warn("archive fetch failed during verification")
		return false, "archive unavailable", false
	}
	recomputed := archive.DocumentHash(doc.Body)
	if !strings.EqualFold(recomputed, record.ContentHash) {
		uc.logger().WithFields(logrus.Fields{
			"certificate_id": record.CertificateID,
			"ledger_hash":    record.ContentHash,
			"computed_hash":  recomputed,
		}).Error("document integrity mismatch")
		return false, "document integrity mismatch", true
	}
	return true, "verified", true
}

func (uc *VerifyCertificate) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now().UTC()
}

func (uc *VerifyCertificate) logger() *logrus.Logger {
	if uc.Log != nil {
		return uc.Log
	}
	return logrus.StandardLogger()
}
