// Package mission defines the declarative mission rule model: triggers,
// nested boolean condition trees, time windows, cooldown and claim limits.
// The model is pure data; evaluation lives in the engine packages.
package mission

import (
	"encoding/json"
	"fmt"
)

// Boolean connectives for grouping conditions.
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// Aggregation kinds a condition may request over its time window.
const (
	AggSum         = "sum"
	AggCount       = "count"
	AggAvg         = "avg"
	AggMin         = "min"
	AggMax         = "max"
	AggUniqueCount = "unique_count"
	AggStreakCount = "streak_count"
)

// AggregationKinds lists every supported aggregation kind.
var AggregationKinds = map[string]bool{
	AggSum:         true,
	AggCount:       true,
	AggAvg:         true,
	AggMin:         true,
	AggMax:         true,
	AggUniqueCount: true,
	AggStreakCount: true,
}

// Rule is the declarative definition of how a mission is earned.
// ConditionTree, when present, is the authoritative condition
// representation; the legacy flat view is derived via FlatConditions and
// is never stored.
type Rule struct {
	Triggers        []Trigger   `json:"triggers" yaml:"triggers"`
	Logic           string      `json:"logic,omitempty" yaml:"logic"`
	ConditionTree   *Node       `json:"condition_tree,omitempty" yaml:"condition_tree"`
	TimeWindow      *TimeWindow `json:"time_window,omitempty" yaml:"time_window"`
	CooldownSeconds int         `json:"cooldown_seconds,omitempty" yaml:"cooldown_seconds"`
	MaxClaims       int         `json:"max_claims,omitempty" yaml:"max_claims"`
}

// Trigger makes a rule eligible for evaluation when an event of EventKey
// arrives and every filter passes (filters are ANDed; an empty list is a
// catch-all). Conditions, when present, must independently reach
// satisfaction for this trigger to count toward a multi-trigger rule.
type Trigger struct {
	EventKey    string      `json:"event_key" yaml:"event_key"`
	Filters     []Condition `json:"filters,omitempty" yaml:"filters"`
	Conditions  []Condition `json:"conditions,omitempty" yaml:"conditions"`
	DebounceMs  int         `json:"debounce_ms,omitempty" yaml:"debounce_ms"`
	Aggregation string      `json:"aggregation,omitempty" yaml:"aggregation"`
	Required    bool        `json:"required,omitempty" yaml:"required"`
}

// Condition is a leaf predicate: operator(extract(field), value).
// Field supports dot-path lookup into event payloads ("bet.sport").
// When Aggregation is set the left-hand side is a live windowed aggregate
// instead of a direct payload lookup.
type Condition struct {
	Field       string      `json:"field" yaml:"field"`
	Operator    string      `json:"operator" yaml:"operator"`
	Value       interface{} `json:"value" yaml:"value"`
	Aggregation string      `json:"aggregation,omitempty" yaml:"aggregation"`
	TimeWindow  *TimeWindow `json:"time_window,omitempty" yaml:"time_window"`
}

// Node is the explicit tagged union over the condition tree:
// either a leaf Condition or a group with a logic connective and children.
// Exactly one of Leaf and Group is non-nil.
type Node struct {
	Leaf  *Condition
	Group *Group
}

// Group is a branch in the condition tree.
type Group struct {
	Logic    string
	Children []Node
}

// IsLeaf reports whether the node is a leaf condition.
func (n *Node) IsLeaf() bool { return n.Leaf != nil }

// nodeWire is the legacy JSON shape: a branch carries a "type" key
// (AND/OR) and a "conditions" array; a leaf is a plain condition object.
type nodeWire struct {
	Type       string            `json:"type"`
	Conditions []json.RawMessage `json:"conditions"`
}

// UnmarshalJSON decodes the duck-typed wire format into the tagged union.
// The discriminator is the presence of a "type" key, mirroring the
// historical encoding.
func (n *Node) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, isGroup := probe["type"]; !isGroup {
		var leaf Condition
		if err := json.Unmarshal(data, &leaf); err != nil {
			return err
		}
		n.Leaf = &leaf
		n.Group = nil
		return nil
	}

	var wire nodeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Type != LogicAnd && wire.Type != LogicOr {
		return fmt.Errorf("condition group: unknown logic %q", wire.Type)
	}
	group := &Group{Logic: wire.Type, Children: make([]Node, 0, len(wire.Conditions))}
	for i, raw := range wire.Conditions {
		var child Node
		if err := json.Unmarshal(raw, &child); err != nil {
			return fmt.Errorf("condition group child %d: %w", i, err)
		}
		group.Children = append(group.Children, child)
	}
	n.Leaf = nil
	n.Group = group
	return nil
}

// MarshalJSON re-encodes the tagged union into the legacy wire format.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.Leaf != nil {
		return json.Marshal(n.Leaf)
	}
	if n.Group == nil {
		return nil, fmt.Errorf("condition node: neither leaf nor group")
	}
	children := make([]json.RawMessage, 0, len(n.Group.Children))
	for _, child := range n.Group.Children {
		raw, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		children = append(children, raw)
	}
	return json.Marshal(struct {
		Type       string            `json:"type"`
		Conditions []json.RawMessage `json:"conditions"`
	}{Type: n.Group.Logic, Conditions: children})
}

// UnmarshalYAML decodes the same duck-typed shape from YAML rule files.
func (n *Node) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var probe map[string]interface{}
	if err := unmarshal(&probe); err != nil {
		return err
	}
	if _, isGroup := probe["type"]; !isGroup {
		var leaf Condition
		if err := unmarshal(&leaf); err != nil {
			return err
		}
		n.Leaf = &leaf
		n.Group = nil
		return nil
	}

	var wire struct {
		Type       string `yaml:"type"`
		Conditions []Node `yaml:"conditions"`
	}
	if err := unmarshal(&wire); err != nil {
		return err
	}
	if wire.Type != LogicAnd && wire.Type != LogicOr {
		return fmt.Errorf("condition group: unknown logic %q", wire.Type)
	}
	n.Leaf = nil
	n.Group = &Group{Logic: wire.Type, Children: wire.Conditions}
	return nil
}

// FlatConditions derives the legacy flat conditions view by walking the
// tree depth-first. The tree is the single source of truth; callers must
// never persist the flattened slice.
func (r *Rule) FlatConditions() []Condition {
	var out []Condition
	if r.ConditionTree != nil {
		flatten(*r.ConditionTree, &out)
	}
	return out
}

func flatten(n Node, out *[]Condition) {
	if n.Leaf != nil {
		*out = append(*out, *n.Leaf)
		return
	}
	if n.Group == nil {
		return
	}
	for _, child := range n.Group.Children {
		flatten(child, out)
	}
}

// Window returns the condition's own window if set, falling back to the
// rule-level window.
func (r *Rule) Window(c Condition) *TimeWindow {
	if c.TimeWindow != nil {
		return c.TimeWindow
	}
	return r.TimeWindow
}
