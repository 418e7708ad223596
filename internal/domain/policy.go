package domain

import "context"

// Actor roles recognized by the transition policy.
const (
	ActorIssuer = "issuer"
	ActorAdmin  = "admin"
)

type TransitionRequest struct {
	TenantID      string `json:"tenant_id"`
	CertificateID string `json:"certificate_id"`
	From          Status `json:"from"`
	To            Status `json:"to"`
	Reason        string `json:"reason"`
	ActorRole     string `json:"actor_role"`
	ActorID       string `json:"actor_id"`
}

type TransitionDecision struct {
	Allowed bool
	Reasons []string
}

// TransitionPolicy gates status changes before anything touches the ledger.
// The ledger's own access control still applies after it.
type TransitionPolicy interface {
	Evaluate(ctx context.Context, req TransitionRequest) (TransitionDecision, error)
}
