// Package policy defines the external policy-evaluation collaborator
// contract. The core never blocks execution on a policy decision; it
// stores the decision's trace verbatim in the terminal receipt.
package policy

import "context"

// WorkDescriptor is the minimal view of a work unit a policy
// evaluator needs to make a routing/budget decision.
type WorkDescriptor struct {
	Tenant  string
	Topic   string
	IdemKey string
	Payload interface{}
}

// TraceEntry is one step of a policy evaluation's reasoning, folded
// into the receipt's policy_trace alongside the runtime's own
// baseline entries.
type TraceEntry struct {
	Rule   string
	OK     bool
	Detail string
}

// Decision is the opaque outcome of evaluating a WorkDescriptor. The
// core reads only Trace; Route, Budgets, Blocked, and
// RequireDualControl are not inspected by the runtime.
type Decision struct {
	Route              string
	Budgets            map[string]int64
	Trace              []TraceEntry
	Blocked            bool
	RequireDualControl bool
}

// Evaluator is the consumed contract.
type Evaluator interface {
	Evaluate(ctx context.Context, desc WorkDescriptor) (Decision, error)
}

// AllowAllPolicy is a reference Evaluator that always allows,
// returning an empty unblocked decision — used when no external
// policy engine is wired.
type AllowAllPolicy struct{}

// Evaluate implements Evaluator.
func (AllowAllPolicy) Evaluate(context.Context, WorkDescriptor) (Decision, error) {
	return Decision{}, nil
}
