// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package spanexport

// SpanNode is one entry of a SpanTree. Record is nil for a placeholder
// standing in for a parent that was referenced but never received.
type SpanNode struct {
	ID       string
	Record   *SpanRecord
	Parent   int
	Children []int
}

// SpanTree is a forest of span nodes stored in a flat slice. Links are
// indexes into Nodes; a Parent of -1 means the node has no parent in the
// tree.
type SpanTree struct {
	Nodes []SpanNode
	index map[string]int
}

// GroupSpansWithParents links spans to their local parents. Every
// referenced parent id that has no record in spans gets a placeholder
// node. When two records share a span id the first one wins.
func GroupSpansWithParents(spans []*SpanRecord) *SpanTree {
	t := &SpanTree{
		Nodes: make([]SpanNode, 0, len(spans)),
		index: make(map[string]int, len(spans)),
	}
	for _, span := range spans {
		if span == nil {
			continue
		}
		i := t.node(span.SpanID)
		if t.Nodes[i].Record != nil {
			continue
		}
		t.Nodes[i].Record = span

		parentID := span.localParentID()
		if parentID == "" {
			continue
		}
		p := t.node(parentID)
		t.Nodes[i].Parent = p
		t.Nodes[p].Children = append(t.Nodes[p].Children, i)
	}
	return t
}

// Lookup returns the node index for a span id.
func (t *SpanTree) Lookup(id string) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// Roots returns the complete roots: nodes that carry a record and have
// no parent node.
func (t *SpanTree) Roots() []int {
	var roots []int
	for i := range t.Nodes {
		if t.Nodes[i].Record != nil && t.Nodes[i].Parent < 0 {
			roots = append(roots, i)
		}
	}
	return roots
}

// Walk visits root and all of its descendants in pre-order, children in
// the order their records arrived. Placeholders are visited too so the
// caller decides what to do with them.
func (t *SpanTree) Walk(root int, visit func(i int, node *SpanNode)) {
	stack := []int{root}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(i, &t.Nodes[i])
		children := t.Nodes[i].Children
		for c := len(children) - 1; c >= 0; c-- {
			stack = append(stack, children[c])
		}
	}
}

func (t *SpanTree) node(id string) int {
	if i, ok := t.index[id]; ok {
		return i
	}
	t.Nodes = append(t.Nodes, SpanNode{ID: id, Parent: -1})
	i := len(t.Nodes) - 1
	t.index[id] = i
	return i
}
