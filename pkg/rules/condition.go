/*
Copyright 2026 The FactoryOps Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package rules implements the alerting rule engine: the recursive AND/OR
// condition tree, the schedule gate, and the per-device evaluator that turns
// telemetry samples into alerts.
package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Comparison operators accepted on leaves.
const (
	OpGT  = "gt"
	OpLT  = "lt"
	OpGTE = "gte"
	OpLTE = "lte"
	OpEQ  = "eq"
	OpNEQ = "neq"
)

// Logical operators accepted on branches.
const (
	OpAnd = "AND"
	OpOr  = "OR"
)

// Node is one node of a condition tree: either a Leaf comparison or a Branch
// combining children with AND/OR. Evaluation is total — malformed nodes,
// unknown operators and missing parameters all evaluate to false, never to an
// error, so a bad rule can never break evaluation of its siblings.
type Node interface {
	// Eval evaluates the node against a single telemetry sample.
	Eval(metrics map[string]float64) bool
	node()
}

// Leaf compares one metric against a threshold. Both sides are interpreted as
// floats.
type Leaf struct {
	Parameter string  `json:"parameter"`
	Operator  string  `json:"operator"`
	Value     float64 `json:"value"`
}

func (Leaf) node() {}

// Eval implements Node.
func (l Leaf) Eval(metrics map[string]float64) bool {
	actual, ok := metrics[l.Parameter]
	if !ok {
		return false
	}
	switch l.Operator {
	case OpGT:
		return actual > l.Value
	case OpLT:
		return actual < l.Value
	case OpGTE:
		return actual >= l.Value
	case OpLTE:
		return actual <= l.Value
	case OpEQ:
		return actual == l.Value
	case OpNEQ:
		return actual != l.Value
	default:
		return false
	}
}

// Branch combines child nodes with AND or OR. An empty child list is false;
// an unknown operator is false.
type Branch struct {
	Operator   string `json:"operator"`
	Conditions []Node `json:"conditions"`
}

func (Branch) node() {}

// Eval implements Node.
func (b Branch) Eval(metrics map[string]float64) bool {
	if len(b.Conditions) == 0 {
		return false
	}
	switch b.Operator {
	case OpAnd:
		for _, c := range b.Conditions {
			if !c.Eval(metrics) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range b.Conditions {
			if c.Eval(metrics) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// rawNode mirrors the wire shape of both variants; the presence of
// "conditions" discriminates a branch from a leaf.
type rawNode struct {
	Operator   string            `json:"operator"`
	Conditions []json.RawMessage `json:"conditions"`
	Parameter  *string           `json:"parameter"`
	Value      *float64          `json:"value"`
}

// ParseNode decodes one tree node from JSON.
func ParseNode(data []byte) (Node, error) {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("condition node: %w", err)
	}
	if raw.Conditions != nil {
		children := make([]Node, 0, len(raw.Conditions))
		for _, c := range raw.Conditions {
			child, err := ParseNode(c)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return Branch{Operator: raw.Operator, Conditions: children}, nil
	}
	leaf := Leaf{Operator: raw.Operator}
	if raw.Parameter != nil {
		leaf.Parameter = *raw.Parameter
	}
	if raw.Value != nil {
		leaf.Value = *raw.Value
	}
	return leaf, nil
}

// MarshalNode encodes a tree node back to its wire shape. ParseNode and
// MarshalNode round-trip for any well-formed tree.
func MarshalNode(n Node) ([]byte, error) {
	switch v := n.(type) {
	case Leaf:
		return json.Marshal(v)
	case Branch:
		children := make([]json.RawMessage, 0, len(v.Conditions))
		for _, c := range v.Conditions {
			enc, err := MarshalNode(c)
			if err != nil {
				return nil, err
			}
			children = append(children, enc)
		}
		return json.Marshal(struct {
			Operator   string            `json:"operator"`
			Conditions []json.RawMessage `json:"conditions"`
		}{v.Operator, children})
	default:
		return nil, fmt.Errorf("unknown node type %T", n)
	}
}

// RenderMessage builds the human alert message for a fired rule:
// "[<rule name>] <param> (<actual>) <op> <threshold>", children joined by the
// branch operator, nested branches parenthesized.
func RenderMessage(ruleName string, root Node, metrics map[string]float64) string {
	return fmt.Sprintf("[%s] %s", ruleName, renderNode(root, metrics, false))
}

func renderNode(n Node, metrics map[string]float64, nested bool) string {
	switch v := n.(type) {
	case Leaf:
		actual := "n/a"
		if val, ok := metrics[v.Parameter]; ok {
			actual = formatFloat(val)
		}
		return fmt.Sprintf("%s (%s) %s %s", v.Parameter, actual, v.Operator, formatFloat(v.Value))
	case Branch:
		parts := make([]string, 0, len(v.Conditions))
		for _, c := range v.Conditions {
			parts = append(parts, renderNode(c, metrics, true))
		}
		joined := strings.Join(parts, " "+v.Operator+" ")
		if nested {
			return "(" + joined + ")"
		}
		return joined
	default:
		return ""
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
