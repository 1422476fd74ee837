package constraint

import (
	"strings"

	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

// compare dispatches on the literal's kind. A variable whose kind does not
// match fails, except that int and float compare with each other.
func compare(v variables.Value, op Operator, lit variables.Value) bool {
	switch lit.Kind {
	case variables.KindBool:
		if v.Kind != variables.KindBool {
			return false
		}
		return equality(op, v.Bool == lit.Bool)

	case variables.KindInt, variables.KindFloat:
		a, ok := v.Numeric()
		if !ok {
			return false
		}
		b, _ := lit.Numeric()
		return ordered(op, cmpFloat(a, b))

	case variables.KindString:
		if v.Kind != variables.KindString {
			return false
		}
		switch op {
		case Contains:
			return strings.Contains(v.Str, lit.Str)
		case NotContains:
			return !strings.Contains(v.Str, lit.Str)
		}
		return equality(op, v.Str == lit.Str)

	case variables.KindDate:
		if v.Kind != variables.KindDate {
			return false
		}
		return ordered(op, v.Time.Compare(lit.Time))

	case variables.KindReference:
		if v.Kind != variables.KindReference {
			return false
		}
		return equality(op, v.Equal(lit))
	}
	return false
}

func equality(op Operator, eq bool) bool {
	switch op {
	case Equal:
		return eq
	case NotEqual:
		return !eq
	}
	return false
}

func ordered(op Operator, c int) bool {
	switch op {
	case Equal:
		return c == 0
	case NotEqual:
		return c != 0
	case Less:
		return c < 0
	case Greater:
		return c > 0
	case LessOrEqual:
		return c <= 0
	case GreaterOrEqual:
		return c >= 0
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
