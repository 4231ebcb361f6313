package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type Relation string

const RELATION_AND Relation = "and"
const RELATION_OR Relation = "or"

// Condition is one atomic predicate of an edge guard.
type Condition struct {
	Key       string `json:"key" yaml:"key"`
	Value     any    `json:"value" yaml:"value"`
	Condition string `json:"condition" yaml:"condition"`
}

type ConditionTree struct {
	Conditions        []Condition `json:"conditions" yaml:"conditions"`
	ConditionRelation string      `json:"conditionRelation" yaml:"conditionRelation"`
}

var identifierPath = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

var operators = map[string]func(operand string, literal string) string{
	"equal":         binary("=="),
	"not_equal":     binary("!="),
	"greater":       binary(">"),
	"greater_equal": binary(">="),
	"less":          binary("<"),
	"less_equal":    binary("<="),
	"contains": func(operand, literal string) string {
		return fmt.Sprintf("String(%s).indexOf(%s) >= 0", operand, literal)
	},
}

func binary(op string) func(string, string) string {
	return func(operand, literal string) string {
		return fmt.Sprintf("%s %s %s", operand, op, literal)
	}
}

// TranslateConditions renders a condition tree as one expression string.
// Predicates keep their order and the relation operator is placed between
// every pair; mixed groups are not regrouped.
func TranslateConditions(tree ConditionTree) (string, error) {
	if len(tree.Conditions) == 0 {
		return "", nil
	}
	joiner, err := relationOperator(tree.ConditionRelation)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(tree.Conditions))
	for i, c := range tree.Conditions {
		render, ok := operators[strings.ToLower(c.Condition)]
		if !ok {
			return "", fmt.Errorf("condition %d: unsupported operator %q", i, c.Condition)
		}
		if c.Key == "" {
			return "", fmt.Errorf("condition %d: key is required", i)
		}
		literal, err := json.Marshal(c.Value)
		if err != nil {
			return "", fmt.Errorf("condition %d: value is not serializable: %w", i, err)
		}
		parts = append(parts, render(operand(c.Key), string(literal)))
	}
	return strings.Join(parts, joiner), nil
}

func relationOperator(relation string) (string, error) {
	switch Relation(strings.ToLower(relation)) {
	case "", RELATION_AND:
		return " && ", nil
	case RELATION_OR:
		return " || ", nil
	default:
		return "", fmt.Errorf("unsupported condition relation %q", relation)
	}
}

func operand(key string) string {
	if identifierPath.MatchString(key) {
		return key
	}
	quoted, _ := json.Marshal(key)
	return fmt.Sprintf("$[%s]", quoted)
}
