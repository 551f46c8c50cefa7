package reconcile

import "sort"

// UnionFind connected-component structure over meeting indexes.
// Kept separate from any database I/O so the linking rules and component
// computation are unit-testable with in-memory fixtures.
type UnionFind struct {
	parent []int
	rank   []int
}

func NewUnionFind(n int) *UnionFind {
	u := &UnionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

func (u *UnionFind) Find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]] // path halving
		x = u.parent[x]
	}
	return x
}

func (u *UnionFind) Union(a, b int) {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// Components groups n nodes by the given undirected edges. Each component's
// members are sorted ascending; components are ordered by their smallest
// member, so the result is independent of edge order.
func Components(n int, edges [][2]int) [][]int {
	u := NewUnionFind(n)
	for _, e := range edges {
		u.Union(e[0], e[1])
	}

	groups := map[int][]int{}
	for i := 0; i < n; i++ {
		root := u.Find(i)
		groups[root] = append(groups[root], i)
	}

	comps := make([][]int, 0, len(groups))
	for _, members := range groups {
		sort.Ints(members)
		comps = append(comps, members)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}
