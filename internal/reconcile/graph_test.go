package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponents_GroupsTransitively(t *testing.T) {
	// 0-1 and 1-2 chain into one component, 3-4 separate, 5 singleton
	comps := Components(6, [][2]int{{0, 1}, {1, 2}, {3, 4}})
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4}, {5}}, comps)
}

func TestComponents_EdgeOrderIndependent(t *testing.T) {
	a := Components(4, [][2]int{{0, 1}, {2, 3}, {1, 2}})
	b := Components(4, [][2]int{{1, 2}, {2, 3}, {0, 1}})
	c := Components(4, [][2]int{{2, 3}, {0, 1}, {1, 2}})
	assert.Equal(t, a, b)
	assert.Equal(t, b, c)
	assert.Equal(t, [][]int{{0, 1, 2, 3}}, a)
}

func TestComponents_NoEdges(t *testing.T) {
	comps := Components(3, nil)
	assert.Equal(t, [][]int{{0}, {1}, {2}}, comps)
}

func TestUnionFind_RedundantUnions(t *testing.T) {
	u := NewUnionFind(3)
	u.Union(0, 1)
	u.Union(0, 1)
	u.Union(1, 0)
	assert.Equal(t, u.Find(0), u.Find(1))
	assert.NotEqual(t, u.Find(0), u.Find(2))
}
