package condition

import (
	"fmt"
	"strings"

	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/mission"
)

// Resolver produces the left-hand value for a leaf condition: either a
// live windowed aggregate (when the condition requests one) or a direct
// dot-path lookup into the triggering event's payload.
type Resolver func(c mission.Condition) (interface{}, error)

// EvaluateLeaf applies the condition's operator to the resolved value.
// Unknown operators return an error rather than a silent false; they are
// rejected at validation time and should never reach here.
func EvaluateLeaf(c mission.Condition, resolve Resolver) (bool, error) {
	op, ok := Operators[c.Operator]
	if !ok {
		return false, fmt.Errorf("unknown operator %q on field %q", c.Operator, c.Field)
	}
	left, err := resolve(c)
	if err != nil {
		return false, err
	}
	return op(left, c.Value), nil
}

// EvaluateTree recursively evaluates a condition tree. AND groups are true
// iff every child is true; OR groups iff at least one child is true. Both
// short-circuit. A nil tree and an empty group evaluate true.
func EvaluateTree(n *mission.Node, resolve Resolver) (bool, error) {
	if n == nil {
		return true, nil
	}
	if n.Leaf != nil {
		return EvaluateLeaf(*n.Leaf, resolve)
	}
	if n.Group == nil {
		return false, fmt.Errorf("condition node is neither leaf nor group")
	}

	switch n.Group.Logic {
	case mission.LogicAnd:
		for i := range n.Group.Children {
			ok, err := EvaluateTree(&n.Group.Children[i], resolve)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case mission.LogicOr:
		if len(n.Group.Children) == 0 {
			return true, nil
		}
		for i := range n.Group.Children {
			ok, err := EvaluateTree(&n.Group.Children[i], resolve)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown group logic %q", n.Group.Logic)
}

// Extract resolves a dot-path ("bet.sport") into a nested payload map.
// The second return is false when any path segment is missing or a
// non-leaf segment is not itself a map.
func Extract(data map[string]interface{}, path string) (interface{}, bool) {
	if path == "" || data == nil {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current interface{} = data
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
