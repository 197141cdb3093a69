package network

// Islands returns the connected components of the in-service branch graph,
// as disjoint lists of bus internal indices. Per-island analysis (exactly
// one slack per component) is the unit spec.md's solvers reason about;
// whole-network analysis is meaningful only when the network is a single
// island. Sequential BFS: unlike the teacher's parallel traversal
// (pkg/parallel/traverse_bfs.go), island discovery runs once per model
// construction/mutation, not per query, and spec.md §5 keeps intra-model
// analysis single-threaded.
func (m *Model) Islands() [][]int {
	adj := make([][]int, len(m.buses))
	for _, br := range m.branches {
		if !br.InService {
			continue
		}
		adj[br.FromBus] = append(adj[br.FromBus], br.ToBus)
		adj[br.ToBus] = append(adj[br.ToBus], br.FromBus)
	}

	visited := make([]bool, len(m.buses))
	var islands [][]int

	for start := range m.buses {
		if visited[start] {
			continue
		}
		queue := []int{start}
		visited[start] = true
		var island []int
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			island = append(island, cur)
			for _, next := range adj[cur] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		islands = append(islands, island)
	}
	return islands
}
