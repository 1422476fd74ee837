// Package constraint implements the predicates used to filter decision point
// candidates. Every failure mode degrades to a failing predicate.
package constraint

import (
	"strings"

	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

// Scope selects which variable store a constraint reads from.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeLocal  Scope = "local"
)

// Operator is a comparison operator.
type Operator string

const (
	Equal          Operator = "eq"
	NotEqual       Operator = "ne"
	Less           Operator = "lt"
	Greater        Operator = "gt"
	LessOrEqual    Operator = "le"
	GreaterOrEqual Operator = "ge"
	Contains       Operator = "contains"
	NotContains    Operator = "not_contains"
)

var operatorAliases = map[string]Operator{
	"eq": Equal, "==": Equal, "equalto": Equal, "equal": Equal,
	"ne": NotEqual, "!=": NotEqual, "notequalto": NotEqual, "not_equal": NotEqual,
	"lt": Less, "<": Less, "lessthan": Less,
	"gt": Greater, ">": Greater, "greaterthan": Greater,
	"le": LessOrEqual, "<=": LessOrEqual, "lessthanorequalto": LessOrEqual,
	"ge": GreaterOrEqual, ">=": GreaterOrEqual, "greaterthanorequalto": GreaterOrEqual,
	"contains": Contains,
	"not_contains": NotContains, "doesnotcontain": NotContains, "notcontains": NotContains,
}

// ParseOperator resolves an operator name. Unknown names return false and the
// zero Operator, which always evaluates to failing.
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

// Mode decides how a node's self-constraints combine.
type Mode string

const (
	ValidIfAll Mode = "all"
	ValidIfAny Mode = "any"
)

// ParseMode maps a document value onto a Mode, defaulting to ValidIfAll.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "any", "validifany", "valid_if_any":
		return ValidIfAny
	default:
		return ValidIfAll
	}
}

// Constraint compares a named variable against a typed literal.
// A zero Literal.Kind marks a literal that failed to resolve.
type Constraint struct {
	Scope    Scope
	Variable string
	Operator Operator
	Literal  variables.Value
}

// Evaluate reports whether c holds. scope is the space-wide store and
// candidate is the candidate node's local store; either may be nil.
func Evaluate(c Constraint, scope, candidate variables.Reader) bool {
	if c.Variable == "" || c.Operator == "" || c.Literal.Kind == "" {
		return false
	}

	var from variables.Reader
	switch c.Scope {
	case ScopeLocal:
		from = candidate
	case ScopeGlobal, "":
		from = scope
	}
	if from == nil {
		return false
	}

	v, ok := from.Get(c.Variable)
	if !ok {
		return false
	}
	return compare(v, c.Operator, c.Literal)
}

// All reports whether every constraint holds. An empty list holds.
func All(cs []Constraint, scope, candidate variables.Reader) bool {
	for _, c := range cs {
		if !Evaluate(c, scope, candidate) {
			return false
		}
	}
	return true
}

// Satisfied applies mode to a node's self-constraints. An empty list is
// satisfied in either mode.
func Satisfied(cs []Constraint, mode Mode, scope, candidate variables.Reader) bool {
	if len(cs) == 0 {
		return true
	}
	if mode != ValidIfAny {
		return All(cs, scope, candidate)
	}
	for _, c := range cs {
		if Evaluate(c, scope, candidate) {
			return true
		}
	}
	return false
}

// Build assembles a constraint from document fields. An unknown operator or a
// literal that does not parse as kind leaves the constraint unresolved.
func Build(scope Scope, variable string, kind variables.Kind, op, literal string) Constraint {
	c := Constraint{Scope: scope, Variable: strings.TrimSpace(variable)}
	if parsed, ok := ParseOperator(op); ok {
		c.Operator = parsed
	}
	if lit, err := variables.Parse(kind, literal); err == nil {
		c.Literal = lit
	}
	return c
}

// Resolved reports whether the constraint can ever hold.
func (c Constraint) Resolved() bool {
	return c.Variable != "" && c.Operator != "" && c.Literal.Kind != ""
}
