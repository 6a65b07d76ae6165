package mission

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testOperators = map[string]bool{
	"==": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true,
	"in": true, "contains": true, "between": true, "exists": true, "not_exists": true,
}

func knownOp(op string) bool { return testOperators[op] }

func leaf(c Condition) *Node { return &Node{Leaf: &c} }

func group(logic string, children ...Node) *Node {
	return &Node{Group: &Group{Logic: logic, Children: children}}
}

func TestValidate_MinimalRule(t *testing.T) {
	r := &Rule{
		Triggers:      []Trigger{{EventKey: "user_logged_in"}},
		ConditionTree: leaf(Condition{Field: "channel", Operator: "==", Value: "mobile"}),
	}
	res := Validate(r, knownOp)
	require.True(t, res.IsValid)
	require.Empty(t, res.Errors)
	require.Equal(t, ComplexityLow, res.Complexity)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr string
	}{
		{
			name:    "no triggers",
			rule:    Rule{},
			wantErr: "rule must define at least one trigger",
		},
		{
			name:    "empty event key",
			rule:    Rule{Triggers: []Trigger{{}}},
			wantErr: "trigger 0: event_key must not be empty",
		},
		{
			name: "unknown operator",
			rule: Rule{
				Triggers:      []Trigger{{EventKey: "bet_placed"}},
				ConditionTree: leaf(Condition{Field: "amount", Operator: "~=", Value: 10}),
			},
			wantErr: `condition 0: unknown operator "~="`,
		},
		{
			name: "unknown aggregation",
			rule: Rule{
				Triggers:      []Trigger{{EventKey: "bet_placed"}},
				ConditionTree: leaf(Condition{Field: "amount", Operator: ">=", Value: 10, Aggregation: "median"}),
			},
			wantErr: `condition 0: unknown aggregation "median"`,
		},
		{
			name: "missing value",
			rule: Rule{
				Triggers:      []Trigger{{EventKey: "bet_placed"}},
				ConditionTree: leaf(Condition{Field: "amount", Operator: ">="}),
			},
			wantErr: "condition 0: value must be defined",
		},
		{
			name: "unknown rule logic",
			rule: Rule{
				Triggers: []Trigger{{EventKey: "bet_placed"}},
				Logic:    "NAND",
			},
			wantErr: `unknown logic "NAND"`,
		},
		{
			name: "bad window duration",
			rule: Rule{
				Triggers:   []Trigger{{EventKey: "bet_placed"}},
				TimeWindow: &TimeWindow{Duration: "fortnight"},
			},
			wantErr: `invalid window duration "fortnight" (want e.g. "7d", "12h")`,
		},
		{
			name: "negative cooldown",
			rule: Rule{
				Triggers:        []Trigger{{EventKey: "bet_placed"}},
				CooldownSeconds: -1,
			},
			wantErr: "cooldown_seconds must not be negative",
		},
		{
			name: "negative max claims",
			rule: Rule{
				Triggers:  []Trigger{{EventKey: "bet_placed"}},
				MaxClaims: -1,
			},
			wantErr: "max_claims must not be negative",
		},
		{
			name: "unknown operator in trigger filter",
			rule: Rule{
				Triggers: []Trigger{{
					EventKey: "bet_placed",
					Filters:  []Condition{{Field: "amount", Operator: "almost", Value: 10}},
				}},
			},
			wantErr: `trigger 0 filter 0: unknown operator "almost"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(&tt.rule, knownOp)
			require.False(t, res.IsValid)
			require.Contains(t, res.Errors, tt.wantErr)
		})
	}
}

func TestValidate_ExistsNeedsNoValue(t *testing.T) {
	r := &Rule{
		Triggers:      []Trigger{{EventKey: "deposit_made"}},
		ConditionTree: leaf(Condition{Field: "bonus_code", Operator: "exists"}),
	}
	res := Validate(r, knownOp)
	require.True(t, res.IsValid)
}

func TestValidate_EmptyGroupWarns(t *testing.T) {
	r := &Rule{
		Triggers:      []Trigger{{EventKey: "deposit_made"}},
		ConditionTree: group(LogicAnd),
	}
	res := Validate(r, knownOp)
	require.True(t, res.IsValid)
	require.Contains(t, res.Warnings, "condition_tree: empty condition group always evaluates true")
}

func TestValidate_AggregationWithoutWindowWarns(t *testing.T) {
	r := &Rule{
		Triggers:      []Trigger{{EventKey: "deposit_made"}},
		ConditionTree: leaf(Condition{Field: "amount", Operator: ">=", Value: 100, Aggregation: AggSum}),
	}
	res := Validate(r, knownOp)
	require.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "no time window")
	require.Equal(t, ComplexityMedium, res.Complexity)
}

func TestValidate_Complexity(t *testing.T) {
	window := &TimeWindow{Duration: "7d", Sliding: true}
	cond := func(agg string) Node {
		return Node{Leaf: &Condition{Field: "amount", Operator: ">=", Value: 1, Aggregation: agg}}
	}

	tests := []struct {
		name string
		rule Rule
		want Complexity
	}{
		{
			name: "single trigger single condition",
			rule: Rule{
				Triggers:      []Trigger{{EventKey: "a"}},
				ConditionTree: group(LogicAnd, cond("")),
			},
			want: ComplexityLow,
		},
		{
			name: "window pushes over the medium line",
			rule: Rule{
				Triggers:      []Trigger{{EventKey: "a"}, {EventKey: "b"}},
				ConditionTree: group(LogicAnd, cond(""), cond("")),
				TimeWindow:    window,
			},
			want: ComplexityMedium,
		},
		{
			name: "many conditions reach high",
			rule: Rule{
				Triggers:      []Trigger{{EventKey: "a"}, {EventKey: "b"}},
				ConditionTree: group(LogicAnd, cond(""), cond(""), cond(""), cond("")),
				TimeWindow:    window,
			},
			want: ComplexityHigh,
		},
		{
			name: "unique_count forces high",
			rule: Rule{
				Triggers:      []Trigger{{EventKey: "a"}},
				ConditionTree: group(LogicAnd, cond(AggUniqueCount)),
				TimeWindow:    window,
			},
			want: ComplexityHigh,
		},
		{
			name: "streak with many companions is very high",
			rule: Rule{
				Triggers:      []Trigger{{EventKey: "a"}},
				ConditionTree: group(LogicAnd, cond(AggStreakCount), cond(""), cond(""), cond("")),
				TimeWindow:    window,
			},
			want: ComplexityVeryHigh,
		},
		{
			name: "sheer size is very high",
			rule: Rule{
				Triggers: []Trigger{
					{EventKey: "a"}, {EventKey: "b"}, {EventKey: "c"}, {EventKey: "d"},
				},
				ConditionTree: group(LogicAnd,
					cond(""), cond(""), cond(""), cond(""), cond("")),
				TimeWindow: window,
			},
			want: ComplexityVeryHigh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(&tt.rule, knownOp)
			require.True(t, res.IsValid, "unexpected errors: %v", res.Errors)
			require.Equal(t, tt.want, res.Complexity)
		})
	}
}
