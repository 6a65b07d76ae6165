package condition

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/mission"
)

// payloadResolver resolves conditions directly against a payload map,
// missing fields resolve to nil.
func payloadResolver(data map[string]interface{}) Resolver {
	return func(c mission.Condition) (interface{}, error) {
		v, _ := Extract(data, c.Field)
		return v, nil
	}
}

func TestEvaluateLeaf(t *testing.T) {
	resolve := payloadResolver(map[string]interface{}{
		"amount": 120.0,
		"bet":    map[string]interface{}{"sport": "football"},
	})

	ok, err := EvaluateLeaf(mission.Condition{Field: "amount", Operator: OpGte, Value: 100}, resolve)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = EvaluateLeaf(mission.Condition{Field: "bet.sport", Operator: OpEq, Value: "tennis"}, resolve)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateLeaf_UnknownOperator(t *testing.T) {
	_, err := EvaluateLeaf(mission.Condition{Field: "amount", Operator: "~=", Value: 1}, payloadResolver(nil))
	require.ErrorContains(t, err, `unknown operator "~="`)
}

func TestEvaluateLeaf_ResolverError(t *testing.T) {
	boom := errors.New("aggregate store unavailable")
	failing := func(mission.Condition) (interface{}, error) { return nil, boom }

	_, err := EvaluateLeaf(mission.Condition{Field: "amount", Operator: OpGte, Value: 1}, failing)
	require.ErrorIs(t, err, boom)
}

func TestEvaluateTree_Basics(t *testing.T) {
	resolve := payloadResolver(map[string]interface{}{"a": 1.0, "b": 2.0})
	leafEq := func(field string, v float64) mission.Node {
		return mission.Node{Leaf: &mission.Condition{Field: field, Operator: OpEq, Value: v}}
	}

	tests := []struct {
		name string
		tree *mission.Node
		want bool
	}{
		{name: "nil tree", tree: nil, want: true},
		{
			name: "empty AND group",
			tree: &mission.Node{Group: &mission.Group{Logic: mission.LogicAnd}},
			want: true,
		},
		{
			name: "empty OR group",
			tree: &mission.Node{Group: &mission.Group{Logic: mission.LogicOr}},
			want: true,
		},
		{
			name: "AND all true",
			tree: &mission.Node{Group: &mission.Group{Logic: mission.LogicAnd, Children: []mission.Node{leafEq("a", 1), leafEq("b", 2)}}},
			want: true,
		},
		{
			name: "AND one false",
			tree: &mission.Node{Group: &mission.Group{Logic: mission.LogicAnd, Children: []mission.Node{leafEq("a", 1), leafEq("b", 99)}}},
			want: false,
		},
		{
			name: "OR one true",
			tree: &mission.Node{Group: &mission.Group{Logic: mission.LogicOr, Children: []mission.Node{leafEq("a", 99), leafEq("b", 2)}}},
			want: true,
		},
		{
			name: "OR all false",
			tree: &mission.Node{Group: &mission.Group{Logic: mission.LogicOr, Children: []mission.Node{leafEq("a", 99), leafEq("b", 99)}}},
			want: false,
		},
		{
			name: "nested OR inside AND",
			tree: &mission.Node{Group: &mission.Group{Logic: mission.LogicAnd, Children: []mission.Node{
				leafEq("a", 1),
				{Group: &mission.Group{Logic: mission.LogicOr, Children: []mission.Node{leafEq("b", 99), leafEq("b", 2)}}},
			}}},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateTree(tt.tree, resolve)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateTree_ErrorsPropagate(t *testing.T) {
	boom := errors.New("resolve failed")
	failing := func(mission.Condition) (interface{}, error) { return nil, boom }
	tree := &mission.Node{Group: &mission.Group{Logic: mission.LogicAnd, Children: []mission.Node{
		{Leaf: &mission.Condition{Field: "a", Operator: OpEq, Value: 1}},
	}}}

	_, err := EvaluateTree(tree, failing)
	require.ErrorIs(t, err, boom)

	malformed := &mission.Node{}
	_, err = EvaluateTree(malformed, payloadResolver(nil))
	require.ErrorContains(t, err, "neither leaf nor group")

	badLogic := &mission.Node{Group: &mission.Group{Logic: "XOR"}}
	_, err = EvaluateTree(badLogic, payloadResolver(nil))
	require.ErrorContains(t, err, `unknown group logic "XOR"`)
}

// TestEvaluateTree_RandomShapes cross-checks the evaluator against an
// independent walk over randomly generated trees of known-truth leaves.
func TestEvaluateTree_RandomShapes(t *testing.T) {
	resolve := payloadResolver(map[string]interface{}{"x": 1.0})
	trueLeaf := mission.Condition{Field: "x", Operator: OpEq, Value: 1}
	falseLeaf := mission.Condition{Field: "x", Operator: OpEq, Value: 2}

	rng := rand.New(rand.NewSource(42))
	var gen func(depth int) mission.Node
	gen = func(depth int) mission.Node {
		if depth == 0 || rng.Intn(3) == 0 {
			if rng.Intn(2) == 0 {
				return mission.Node{Leaf: &trueLeaf}
			}
			return mission.Node{Leaf: &falseLeaf}
		}
		logic := mission.LogicAnd
		if rng.Intn(2) == 0 {
			logic = mission.LogicOr
		}
		n := rng.Intn(4)
		children := make([]mission.Node, 0, n)
		for i := 0; i < n; i++ {
			children = append(children, gen(depth-1))
		}
		return mission.Node{Group: &mission.Group{Logic: logic, Children: children}}
	}

	var naive func(n mission.Node) bool
	naive = func(n mission.Node) bool {
		if n.Leaf != nil {
			return n.Leaf.Value == 1
		}
		if n.Group.Logic == mission.LogicAnd {
			for _, c := range n.Group.Children {
				if !naive(c) {
					return false
				}
			}
			return true
		}
		if len(n.Group.Children) == 0 {
			return true
		}
		for _, c := range n.Group.Children {
			if naive(c) {
				return true
			}
		}
		return false
	}

	for i := 0; i < 200; i++ {
		tree := gen(3)
		got, err := EvaluateTree(&tree, resolve)
		require.NoError(t, err)
		require.Equal(t, naive(tree), got, "tree %d", i)
	}
}

func TestExtract(t *testing.T) {
	data := map[string]interface{}{
		"amount": 50.0,
		"bet": map[string]interface{}{
			"sport": "football",
			"odds":  map[string]interface{}{"decimal": 1.85},
		},
		"tags": []interface{}{"vip"},
	}

	tests := []struct {
		path   string
		want   interface{}
		wantOK bool
	}{
		{path: "amount", want: 50.0, wantOK: true},
		{path: "bet.sport", want: "football", wantOK: true},
		{path: "bet.odds.decimal", want: 1.85, wantOK: true},
		{path: "bet.missing", wantOK: false},
		{path: "missing", wantOK: false},
		{path: "amount.nested", wantOK: false}, // non-map mid-path
		{path: "tags.0", wantOK: false},        // arrays are not traversable
		{path: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Extract(data, tt.path)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.Equal(t, tt.want, got)
			}
		})
	}

	_, ok := Extract(nil, "amount")
	require.False(t, ok)
}
