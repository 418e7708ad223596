// Package policy evaluates status transition requests against a rego
// policy before anything is submitted to the ledger. The ledger's own
// access control is the final authority; this gate exists to fail fast and
// to keep transition rules auditable outside the contract.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"certledger/internal/domain"

	"github.com/open-policy-agent/opa/rego"
)

const transitionQuery = "data.certledger.transitions"

// defaultModule encodes the certificate status rules: suspension and
// revocation require a reason, reinstatement is an administrative action,
// and expired is never a stored transition.
const defaultModule = `package certledger.transitions

default allow = false

allow {
	count(deny) == 0
}

transition_defined { input.from == "valid"; input.to == "suspended" }
transition_defined { input.from == "valid"; input.to == "revoked" }
transition_defined { input.from == "suspended"; input.to == "valid" }
transition_defined { input.from == "suspended"; input.to == "revoked" }

deny["transition not permitted"] {
	not transition_defined
}

needs_reason { input.to == "suspended" }
needs_reason { input.to == "revoked" }

deny["reason is required"] {
	needs_reason
	input.reason == ""
}

deny["reinstatement requires an administrative actor"] {
	input.from == "suspended"
	input.to == "valid"
	input.actor_role != "admin"
}

deny["actor role not recognized"] {
	input.actor_role != "admin"
	input.actor_role != "issuer"
}
`

type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the built-in transition policy.
func NewEngine(ctx context.Context) (*Engine, error) {
	return newEngineFromModule(ctx, defaultModule)
}

// NewEngineFromPath loads a policy bundle from disk, replacing the
// built-in module for deployments with bespoke transition rules.
func NewEngineFromPath(ctx context.Context, bundlePath string) (*Engine, error) {
	if bundlePath == "" {
		return nil, errors.New("bundle path is required")
	}
	r := rego.New(
		rego.Query(transitionQuery),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func newEngineFromModule(ctx context.Context, module string) (*Engine, error) {
	r := rego.New(
		rego.Query(transitionQuery),
		rego.StrictBuiltinErrors(true),
		rego.Module("transitions.rego", module),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Evaluate(ctx context.Context, req domain.TransitionRequest) (domain.TransitionDecision, error) {
	if e == nil {
		return domain.TransitionDecision{}, errors.New("policy engine is nil")
	}
	input, err := toInput(req)
	if err != nil {
		return domain.TransitionDecision{}, err
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.TransitionDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.TransitionDecision{}, errors.New("empty policy result")
	}
	doc, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return domain.TransitionDecision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	decision := domain.TransitionDecision{}
	if allow, ok := doc["allow"].(bool); ok {
		decision.Allowed = allow
	}
	if rawDeny, ok := doc["deny"].([]any); ok {
		for _, item := range rawDeny {
			if msg, ok := item.(string); ok {
				decision.Reasons = append(decision.Reasons, msg)
			}
		}
		sort.Strings(decision.Reasons)
	}
	return decision, nil
}

func toInput(req domain.TransitionRequest) (map[string]any, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	return input, nil
}

var _ domain.TransitionPolicy = (*Engine)(nil)
