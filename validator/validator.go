package validator

import (
	"fmt"

	"github.com/mohitkumar/flowengine/model"
)

type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s]: %s", e.Rule, e.Message)
}

func violation(rule string, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// Rule is one independent structural check of a definition.
type Rule interface {
	Name() string
	Apply(def *model.FlowDefinition) error
}

type ruleFunc struct {
	name  string
	apply func(def *model.FlowDefinition) error
}

func (r ruleFunc) Name() string {
	return r.name
}

func (r ruleFunc) Apply(def *model.FlowDefinition) error {
	return r.apply(def)
}

type Validator struct {
	rules []Rule
}

// New returns a validator with the default rule chain. Extra rules run after it.
func New(extra ...Rule) *Validator {
	rules := []Rule{
		ruleFunc{"identity", checkIdentity},
		ruleFunc{"single-start-node", checkSingleStart},
		ruleFunc{"event-references", checkEventReferences},
		ruleFunc{"non-terminal-events", checkNonTerminalEvents},
		ruleFunc{"callback-targets", checkCallbackTargets},
		ruleFunc{"filter-thresholds", checkFilterThresholds},
	}
	return &Validator{rules: append(rules, extra...)}
}

// Validate runs every rule in order and reports the first violation.
func (v *Validator) Validate(def *model.FlowDefinition) error {
	if def == nil {
		return violation("identity", "definition is nil")
	}
	var first error
	for _, r := range v.rules {
		if err := r.Apply(def); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func checkIdentity(def *model.FlowDefinition) error {
	if def.MetaID == "" {
		return violation("identity", "metaId is required")
	}
	if def.Version == "" {
		return violation("identity", "version is required")
	}
	return nil
}

func checkSingleStart(def *model.FlowDefinition) error {
	starts := def.StartNodes()
	if len(starts) != 1 {
		return violation("single-start-node", "expected exactly one start node, found %d", len(starts))
	}
	if inbound := def.InboundEvents(starts[0].ID); len(inbound) > 0 {
		return violation("single-start-node", "start node %s has inbound event %s", starts[0].ID, inbound[0].ID)
	}
	return nil
}

func checkEventReferences(def *model.FlowDefinition) error {
	for _, n := range def.Nodes {
		for _, ev := range n.Events {
			if _, ok := def.Node(ev.From); !ok || ev.From != n.ID {
				return violation("event-references", "event %s has from %q which does not resolve to its owning node %s", ev.ID, ev.From, n.ID)
			}
			if _, ok := def.Node(ev.To); !ok {
				return violation("event-references", "event %s references unknown node %q", ev.ID, ev.To)
			}
		}
	}
	return nil
}

func checkNonTerminalEvents(def *model.FlowDefinition) error {
	for _, n := range def.Nodes {
		if n.Kind != model.NODE_END && len(n.Events) == 0 {
			return violation("non-terminal-events", "node %s is not an end node and has no outbound event", n.ID)
		}
	}
	return nil
}

func checkCallbackTargets(def *model.FlowDefinition) error {
	for _, n := range def.Nodes {
		cb := n.Callback
		if cb == nil {
			continue
		}
		switch cb.Type {
		case model.CALLBACK_GENERAL:
			if len(cb.FitableIDs) != 1 {
				return violation("callback-targets", "node %s: general callback needs exactly one target, found %d", n.ID, len(cb.FitableIDs))
			}
		case model.CALLBACK_SINGLE_TARGET:
			if len(cb.FitableIDs) == 0 {
				return violation("callback-targets", "node %s: single_target callback needs a target", n.ID)
			}
		default:
			return violation("callback-targets", "node %s: unknown callback type %q", n.ID, cb.Type)
		}
	}
	return nil
}

func checkFilterThresholds(def *model.FlowDefinition) error {
	for _, n := range def.Nodes {
		for i, f := range n.Filters {
			if f.Threshold < 0 {
				return violation("filter-thresholds", "node %s: filter %d threshold %d is negative", n.ID, i, f.Threshold)
			}
		}
	}
	return nil
}
