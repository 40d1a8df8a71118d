package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const lockoutQuery = "data.icp.command_access.lockout_mode"

// Default Rego policy: the essentials tier is hard locked out; every other
// tier is steered to view-only.
const defaultRegoPolicy = `package icp.command_access

default lockout_mode = "view_only_recommended"

lockout_mode = "locked_out" if {
	input.user.license_tier == "essentials"
}
`

// OPAEvaluator evaluates the lockout policy using OPA Rego. The policy is
// compiled once at construction.
type OPAEvaluator struct {
	compiler *ast.Compiler
}

// NewOPAEvaluator compiles the default lockout policy and returns the evaluator.
func NewOPAEvaluator() (*OPAEvaluator, error) {
	compiler, err := ast.CompileModules(map[string]string{"lockout.rego": defaultRegoPolicy})
	if err != nil {
		return nil, fmt.Errorf("compile lockout policy: %w", err)
	}
	return &OPAEvaluator{compiler: compiler}, nil
}

// EvaluateLockout evaluates the lockout mode for the caller.
func (e *OPAEvaluator) EvaluateLockout(ctx context.Context, in LockoutInput) (LockoutDecision, error) {
	input := map[string]interface{}{
		"user": map[string]interface{}{
			"license_tier": in.LicenseTier,
		},
		"incident": map[string]interface{}{
			"id": in.IncidentID,
		},
	}
	q := rego.New(
		rego.Query(lockoutQuery),
		rego.Compiler(e.compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return LockoutDecision{}, fmt.Errorf("eval lockout policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return LockoutDecision{}, fmt.Errorf("lockout policy query returned no result")
	}
	mode, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return LockoutDecision{}, fmt.Errorf("lockout policy returned non-string mode")
	}
	return decisionFor(LockoutMode(mode)), nil
}

func decisionFor(mode LockoutMode) LockoutDecision {
	switch mode {
	case LockoutModeLockedOut:
		return LockoutDecision{
			Mode:    LockoutModeLockedOut,
			Message: "another of your sessions commands an incident; this device is locked out",
		}
	default:
		return LockoutDecision{
			Mode:    LockoutModeViewOnly,
			Message: "another of your sessions commands an incident; view-only mode is recommended",
		}
	}
}
