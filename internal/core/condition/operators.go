// Package condition evaluates mission conditions: an operator registry for
// leaf predicates and a recursive evaluator for nested AND/OR trees.
package condition

import (
	"regexp"
	"strings"
	"sync"

	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/aggregate"
)

// Supported comparison operators.
const (
	OpEq          = "=="
	OpNeq         = "!="
	OpGt          = ">"
	OpGte         = ">="
	OpLt          = "<"
	OpLte         = "<="
	OpIn          = "in"
	OpNotIn       = "not_in"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpBetween     = "between"
	OpExists      = "exists"
	OpNotExists   = "not_exists"
	OpRegex       = "regex"
)

// Operator compares an extracted left-hand value against the condition's
// configured right-hand value. Operators never panic and never return
// errors: a value that cannot be coerced simply fails the comparison.
type Operator func(left, right interface{}) bool

// Operators is the registry of all supported comparison operators.
// To add an operator: implement Operator and add an entry here. Rule
// validation consults this registry, so an unknown operator is rejected
// before a rule ever reaches the evaluator.
var Operators = map[string]Operator{
	OpEq:          looseEqual,
	OpNeq:         func(l, r interface{}) bool { return !looseEqual(l, r) },
	OpGt:          numericCompare(func(c int) bool { return c > 0 }),
	OpGte:         numericCompare(func(c int) bool { return c >= 0 }),
	OpLt:          numericCompare(func(c int) bool { return c < 0 }),
	OpLte:         numericCompare(func(c int) bool { return c <= 0 }),
	OpIn:          membership,
	OpNotIn:       func(l, r interface{}) bool { return !membership(l, r) },
	OpContains:    substring,
	OpNotContains: func(l, r interface{}) bool { return !substring(l, r) },
	OpBetween:     between,
	OpExists:      func(l, _ interface{}) bool { return l != nil },
	OpNotExists:   func(l, _ interface{}) bool { return l == nil },
	OpRegex:       regexMatch,
}

// Known reports whether op is a registered comparison operator.
func Known(op string) bool {
	_, ok := Operators[op]
	return ok
}

// looseEqual mirrors the historical non-strict comparison: numeric values
// compare numerically regardless of source type ("5" == 5 == 5.0);
// everything else compares on its string form.
func looseEqual(left, right interface{}) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	l, lok := aggregate.ToDecimal(left)
	r, rok := aggregate.ToDecimal(right)
	if lok && rok {
		return l.Equal(r)
	}
	return stringify(left) == stringify(right)
}

func numericCompare(accept func(cmp int) bool) Operator {
	return func(left, right interface{}) bool {
		l, lok := aggregate.ToDecimal(left)
		r, rok := aggregate.ToDecimal(right)
		if !lok || !rok {
			return false
		}
		return accept(l.Cmp(r))
	}
}

// membership checks the left value against a configured array using loose
// equality per element.
func membership(left, right interface{}) bool {
	items, ok := toSlice(right)
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEqual(left, item) {
			return true
		}
	}
	return false
}

func substring(left, right interface{}) bool {
	if left == nil || right == nil {
		return false
	}
	return strings.Contains(stringify(left), stringify(right))
}

// between checks an inclusive numeric range from a 2-element array.
func between(left, right interface{}) bool {
	bounds, ok := toSlice(right)
	if !ok || len(bounds) != 2 {
		return false
	}
	v, vok := aggregate.ToDecimal(left)
	lo, look := aggregate.ToDecimal(bounds[0])
	hi, hiok := aggregate.ToDecimal(bounds[1])
	if !vok || !look || !hiok {
		return false
	}
	return v.Cmp(lo) >= 0 && v.Cmp(hi) <= 0
}

// regexMatch tests the pattern against the stringified left value.
// Invalid patterns evaluate to false, never panic.
func regexMatch(left, right interface{}) bool {
	if left == nil || right == nil {
		return false
	}
	re, err := compileCached(stringify(right))
	if err != nil {
		return false
	}
	return re.MatchString(stringify(left))
}

// regexCache bounds compiled-pattern memory so a rule catalog full of
// distinct patterns cannot grow it without limit.
var regexCache = struct {
	sync.Mutex
	compiled map[string]*regexp.Regexp
}{compiled: make(map[string]*regexp.Regexp)}

const regexCacheLimit = 512

func compileCached(pattern string) (*regexp.Regexp, error) {
	regexCache.Lock()
	defer regexCache.Unlock()
	if re, ok := regexCache.compiled[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if len(regexCache.compiled) >= regexCacheLimit {
		regexCache.compiled = make(map[string]*regexp.Regexp)
	}
	regexCache.compiled[pattern] = re
	return re, nil
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch val := v.(type) {
	case []interface{}:
		return val, true
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(val))
		for i, f := range val {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]interface{}, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// stringify renders a value for text matching. Unlike
// aggregate.Stringify it keeps string values verbatim, so substring and
// regex operators see "3.0" as written, not normalized to "3".
func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return aggregate.Stringify(v)
}
