package mission

import (
	"fmt"
)

// Complexity classifies how expensive a rule is to evaluate and how much
// historical state it needs.
type Complexity string

const (
	ComplexityLow      Complexity = "LOW"
	ComplexityMedium   Complexity = "MEDIUM"
	ComplexityHigh     Complexity = "HIGH"
	ComplexityVeryHigh Complexity = "VERY_HIGH"
)

// ValidationResult is the outcome of static rule validation.
type ValidationResult struct {
	IsValid    bool       `json:"is_valid"`
	Errors     []string   `json:"errors,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
	Complexity Complexity `json:"complexity"`
}

// Validate runs static structural checks and complexity classification on a
// rule. It never mutates the rule and is safe to call repeatedly.
//
// Unknown operators and unknown aggregation kinds are validation errors,
// not a silent false at evaluation time: a rule that cannot evaluate
// deterministically must be rejected before activation.
func Validate(r *Rule, knownOperator func(string) bool) ValidationResult {
	res := ValidationResult{IsValid: true}

	if len(r.Triggers) == 0 {
		res.fail("rule must define at least one trigger")
	}
	for i, t := range r.Triggers {
		if t.EventKey == "" {
			res.fail(fmt.Sprintf("trigger %d: event_key must not be empty", i))
		}
		if t.Aggregation != "" && !AggregationKinds[t.Aggregation] {
			res.fail(fmt.Sprintf("trigger %d: unknown aggregation %q", i, t.Aggregation))
		}
		for j, f := range t.Filters {
			res.checkCondition(fmt.Sprintf("trigger %d filter %d", i, j), f, knownOperator)
		}
		for j, c := range t.Conditions {
			res.checkCondition(fmt.Sprintf("trigger %d condition %d", i, j), c, knownOperator)
		}
	}

	if r.Logic != "" && r.Logic != LogicAnd && r.Logic != LogicOr {
		res.fail(fmt.Sprintf("unknown logic %q", r.Logic))
	}

	flat := r.FlatConditions()
	for i, c := range flat {
		res.checkCondition(fmt.Sprintf("condition %d", i), c, knownOperator)
	}
	if r.ConditionTree != nil {
		res.checkTree("condition_tree", *r.ConditionTree)
	}

	if r.TimeWindow != nil {
		if err := r.TimeWindow.Valid(); err != nil {
			res.fail(err.Error())
		}
	}
	if r.CooldownSeconds < 0 {
		res.fail("cooldown_seconds must not be negative")
	}
	if r.MaxClaims < 0 {
		res.fail("max_claims must not be negative")
	}

	res.Complexity = classify(r, flat, &res)
	return res
}

func (res *ValidationResult) fail(msg string) {
	res.IsValid = false
	res.Errors = append(res.Errors, msg)
}

func (res *ValidationResult) warn(msg string) {
	res.Warnings = append(res.Warnings, msg)
}

func (res *ValidationResult) checkCondition(where string, c Condition, knownOperator func(string) bool) {
	if c.Field == "" {
		res.fail(where + ": field must not be empty")
	}
	if c.Operator == "" {
		res.fail(where + ": operator must not be empty")
	} else if knownOperator != nil && !knownOperator(c.Operator) {
		res.fail(fmt.Sprintf("%s: unknown operator %q", where, c.Operator))
	}
	if c.Value == nil && c.Operator != "exists" && c.Operator != "not_exists" {
		res.fail(where + ": value must be defined")
	}
	if c.Aggregation != "" && !AggregationKinds[c.Aggregation] {
		res.fail(fmt.Sprintf("%s: unknown aggregation %q", where, c.Aggregation))
	}
	if c.TimeWindow != nil {
		if err := c.TimeWindow.Valid(); err != nil {
			res.fail(fmt.Sprintf("%s: %v", where, err))
		}
	}
}

func (res *ValidationResult) checkTree(where string, n Node) {
	if n.Leaf != nil {
		return // leaves are checked via the flattened view
	}
	if n.Group == nil {
		res.fail(where + ": node is neither a condition nor a group")
		return
	}
	if n.Group.Logic != LogicAnd && n.Group.Logic != LogicOr {
		res.fail(fmt.Sprintf("%s: unknown group logic %q", where, n.Group.Logic))
	}
	if len(n.Group.Children) == 0 {
		res.warn(where + ": empty condition group always evaluates true")
	}
	for i, child := range n.Group.Children {
		res.checkTree(fmt.Sprintf("%s.%d", where, i), child)
	}
}

// classify applies the complexity policy:
// base score = triggers + flattened conditions; +2 when a time window is
// present. Aggregation without any window risks unbounded accumulation:
// warn and bump to at least MEDIUM. unique_count / streak_count need
// unbounded historical state: force HIGH, or VERY_HIGH when combined with
// more than two other conditions.
func classify(r *Rule, flat []Condition, res *ValidationResult) Complexity {
	all := make([]Condition, 0, len(flat))
	all = append(all, flat...)
	for _, t := range r.Triggers {
		all = append(all, t.Conditions...)
	}

	score := len(r.Triggers) + len(all)
	if r.TimeWindow != nil {
		score += 2
	}

	c := ComplexityLow
	switch {
	case score > 10:
		c = ComplexityVeryHigh
	case score > 6:
		c = ComplexityHigh
	case score > 3:
		c = ComplexityMedium
	}

	heavy := 0
	for _, cond := range all {
		if cond.Aggregation == AggUniqueCount || cond.Aggregation == AggStreakCount {
			heavy++
		}
		if cond.Aggregation != "" && cond.TimeWindow == nil && r.TimeWindow == nil {
			res.warn(fmt.Sprintf("aggregation %q on field %q has no time window: values accumulate forever", cond.Aggregation, cond.Field))
			if c == ComplexityLow {
				c = ComplexityMedium
			}
		}
	}
	if heavy > 0 {
		if len(all)-heavy > 2 {
			return ComplexityVeryHigh
		}
		if c != ComplexityVeryHigh {
			c = ComplexityHigh
		}
	}
	return c
}
