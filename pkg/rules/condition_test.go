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

package rules_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factoryops/factoryops/pkg/rules"
)

var _ = Describe("Condition tree evaluation", func() {
	metrics := map[string]float64{
		"temperature": 85.5,
		"voltage":     245.2,
		"current":     10.0,
	}

	DescribeTable("leaf comparisons",
		func(param, op string, threshold float64, expected bool) {
			leaf := rules.Leaf{Parameter: param, Operator: op, Value: threshold}
			Expect(leaf.Eval(metrics)).To(Equal(expected))
		},
		Entry("gt true", "temperature", rules.OpGT, 80.0, true),
		Entry("gt false on equal", "current", rules.OpGT, 10.0, false),
		Entry("lt true", "current", rules.OpLT, 15.0, true),
		Entry("lt false", "voltage", rules.OpLT, 240.0, false),
		Entry("gte on equal", "current", rules.OpGTE, 10.0, true),
		Entry("lte on equal", "current", rules.OpLTE, 10.0, true),
		Entry("eq exact", "current", rules.OpEQ, 10.0, true),
		Entry("eq miss", "temperature", rules.OpEQ, 85.0, false),
		Entry("neq hit", "temperature", rules.OpNEQ, 85.0, true),
		Entry("neq miss", "current", rules.OpNEQ, 10.0, false),
	)

	It("evaluates a missing parameter to false", func() {
		leaf := rules.Leaf{Parameter: "pressure", Operator: rules.OpGT, Value: 0}
		Expect(leaf.Eval(metrics)).To(BeFalse())
	})

	It("evaluates an unknown leaf operator to false", func() {
		leaf := rules.Leaf{Parameter: "temperature", Operator: "contains", Value: 80}
		Expect(leaf.Eval(metrics)).To(BeFalse())
	})

	Describe("branches", func() {
		hot := rules.Leaf{Parameter: "temperature", Operator: rules.OpGT, Value: 80}
		overVolt := rules.Leaf{Parameter: "voltage", Operator: rules.OpGT, Value: 250}

		It("requires every child for AND", func() {
			b := rules.Branch{Operator: rules.OpAnd, Conditions: []rules.Node{hot, overVolt}}
			Expect(b.Eval(metrics)).To(BeFalse())
		})

		It("requires any child for OR", func() {
			b := rules.Branch{Operator: rules.OpOr, Conditions: []rules.Node{hot, overVolt}}
			Expect(b.Eval(metrics)).To(BeTrue())
		})

		It("evaluates an empty condition list to false", func() {
			Expect(rules.Branch{Operator: rules.OpAnd}.Eval(metrics)).To(BeFalse())
			Expect(rules.Branch{Operator: rules.OpOr}.Eval(metrics)).To(BeFalse())
		})

		It("evaluates an unknown branch operator to false", func() {
			b := rules.Branch{Operator: "XOR", Conditions: []rules.Node{hot}}
			Expect(b.Eval(metrics)).To(BeFalse())
		})

		It("evaluates nested trees", func() {
			tree := rules.Branch{
				Operator: rules.OpOr,
				Conditions: []rules.Node{
					overVolt,
					rules.Branch{
						Operator: rules.OpAnd,
						Conditions: []rules.Node{
							hot,
							rules.Leaf{Parameter: "current", Operator: rules.OpGTE, Value: 10},
						},
					},
				},
			}
			Expect(tree.Eval(metrics)).To(BeTrue())
		})
	})
})

var _ = Describe("Condition tree serialization", func() {
	It("parses a leaf", func() {
		node, err := rules.ParseNode([]byte(
			`{"parameter": "temperature", "operator": "gt", "value": 80}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(node).To(Equal(rules.Leaf{Parameter: "temperature", Operator: "gt", Value: 80}))
	})

	It("dispatches on the presence of the conditions key", func() {
		node, err := rules.ParseNode([]byte(
			`{"operator": "AND", "conditions": [` +
				`{"parameter": "a", "operator": "gt", "value": 1},` +
				`{"parameter": "b", "operator": "lt", "value": 2}]}`))
		Expect(err).NotTo(HaveOccurred())
		branch, ok := node.(rules.Branch)
		Expect(ok).To(BeTrue())
		Expect(branch.Operator).To(Equal("AND"))
		Expect(branch.Conditions).To(HaveLen(2))
	})

	It("round-trips a nested tree", func() {
		original := rules.Branch{
			Operator: rules.OpOr,
			Conditions: []rules.Node{
				rules.Leaf{Parameter: "voltage", Operator: rules.OpGT, Value: 250},
				rules.Branch{
					Operator: rules.OpAnd,
					Conditions: []rules.Node{
						rules.Leaf{Parameter: "temperature", Operator: rules.OpGT, Value: 80},
						rules.Leaf{Parameter: "current", Operator: rules.OpGTE, Value: 10},
					},
				},
			},
		}
		data, err := rules.MarshalNode(original)
		Expect(err).NotTo(HaveOccurred())
		decoded, err := rules.ParseNode(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(Equal(original))
	})

	It("rejects malformed JSON", func() {
		_, err := rules.ParseNode([]byte(`{"operator":`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Alert message rendering", func() {
	metrics := map[string]float64{"voltage": 245.2, "temperature": 85.5}

	It("renders a single leaf", func() {
		root := rules.Leaf{Parameter: "voltage", Operator: rules.OpGT, Value: 240}
		Expect(rules.RenderMessage("Overvoltage", root, metrics)).
			To(Equal("[Overvoltage] voltage (245.2) gt 240"))
	})

	It("joins top-level branch children with the operator", func() {
		root := rules.Branch{
			Operator: rules.OpAnd,
			Conditions: []rules.Node{
				rules.Leaf{Parameter: "voltage", Operator: rules.OpGT, Value: 240},
				rules.Leaf{Parameter: "temperature", Operator: rules.OpGT, Value: 80},
			},
		}
		Expect(rules.RenderMessage("Stress", root, metrics)).
			To(Equal("[Stress] voltage (245.2) gt 240 AND temperature (85.5) gt 80"))
	})

	It("parenthesizes nested branches", func() {
		root := rules.Branch{
			Operator: rules.OpOr,
			Conditions: []rules.Node{
				rules.Leaf{Parameter: "voltage", Operator: rules.OpGT, Value: 250},
				rules.Branch{
					Operator: rules.OpAnd,
					Conditions: []rules.Node{
						rules.Leaf{Parameter: "temperature", Operator: rules.OpGT, Value: 80},
						rules.Leaf{Parameter: "voltage", Operator: rules.OpGTE, Value: 240},
					},
				},
			},
		}
		Expect(rules.RenderMessage("Combined", root, metrics)).
			To(Equal("[Combined] voltage (245.2) gt 250 OR " +
				"(temperature (85.5) gt 80 AND voltage (245.2) gte 240)"))
	})

	It("renders a missing parameter as n/a", func() {
		root := rules.Leaf{Parameter: "pressure", Operator: rules.OpLT, Value: 1.5}
		Expect(rules.RenderMessage("LowPressure", root, metrics)).
			To(Equal("[LowPressure] pressure (n/a) lt 1.5"))
	})
})
