package domain

import (
	"context"
	"time"
)

const (
	IdentifierNumber = "number"
	IdentifierCode   = "code"
)

// VerificationResult distinguishes four outcomes: not found, pending
// confirmation, verified, and integrity mismatch. Collapsing any of these
// into a single "invalid" bucket is a design defect.
type VerificationResult struct {
	Found             bool             `json:"found"`
	LedgerVerified    bool             `json:"ledger_verified"`
	IntegrityVerified bool             `json:"integrity_verified"`
	IsExpired         bool             `json:"is_expired"`
	EffectiveStatus   Status           `json:"effective_status,omitempty"`
	Message           string           `json:"message"`
	Certificate       *CertificateView `json:"certificate,omitempty"`
	VerifiedAt        time.Time        `json:"verified_at"`
}

type VerificationCache interface {
	Get(ctx context.Context, key string) (*VerificationResult, bool, error)
	Put(ctx context.Context, key string, result VerificationResult, ttl time.Duration) error
}

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
