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

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupSpansWithParents(t *testing.T) {
	child := newSpan("child", "root", epoch)
	root := newSpan("root", "", epoch)
	orphan := newSpan("orphan", "missing", epoch)
	remote := newSpan("remote", "elsewhere", epoch)
	remote.ParentIsRemote = true

	tree := GroupSpansWithParents([]*SpanRecord{child, root, orphan, remote})

	require.Len(t, tree.Nodes, 5, "four records plus a placeholder for the missing parent")

	r, ok := tree.Lookup("root")
	require.True(t, ok)
	assert.Same(t, root, tree.Nodes[r].Record)
	assert.Equal(t, -1, tree.Nodes[r].Parent)

	c, _ := tree.Lookup("child")
	assert.Equal(t, r, tree.Nodes[c].Parent)
	assert.Equal(t, []int{c}, tree.Nodes[r].Children)

	m, ok := tree.Lookup("missing")
	require.True(t, ok)
	assert.Nil(t, tree.Nodes[m].Record)

	_, ok = tree.Lookup("elsewhere")
	assert.False(t, ok, "remote parents get no placeholder")

	rm, _ := tree.Lookup("remote")
	assert.ElementsMatch(t, []int{r, rm}, tree.Roots())
}

func TestGroupSpansSelfParent(t *testing.T) {
	tree := GroupSpansWithParents([]*SpanRecord{newSpan("loop", "loop", epoch)})
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, []int{0}, tree.Roots())
}

func TestGroupSpansCycleHasNoRoot(t *testing.T) {
	tree := GroupSpansWithParents([]*SpanRecord{
		newSpan("a", "b", epoch),
		newSpan("b", "a", epoch),
	})
	assert.Empty(t, tree.Roots())
}

func TestWalkIsPreOrder(t *testing.T) {
	tree := GroupSpansWithParents([]*SpanRecord{
		newSpan("a1", "a", epoch),
		newSpan("b", "r", epoch),
		newSpan("a", "r", epoch),
		newSpan("r", "", epoch),
		newSpan("a2", "a", epoch),
	})
	root, _ := tree.Lookup("r")

	var visited []string
	tree.Walk(root, func(_ int, node *SpanNode) {
		visited = append(visited, node.ID)
	})
	assert.Equal(t, []string{"r", "b", "a", "a1", "a2"}, visited)
}

func TestWalkDeepTree(t *testing.T) {
	const depth = 100000
	spans := make([]*SpanRecord, 0, depth)
	spans = append(spans, newSpan("s0", "", epoch))
	for i := 1; i < depth; i++ {
		spans = append(spans, newSpan(idFor(i), idFor(i-1), epoch))
	}
	tree := GroupSpansWithParents(spans)
	count := 0
	tree.Walk(0, func(int, *SpanNode) { count++ })
	assert.Equal(t, depth, count)
}

func idFor(i int) string {
	return "s" + strconv.Itoa(i)
}
