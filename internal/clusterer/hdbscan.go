package clusterer

import (
	"math"
	"sort"
)

// hdbscan is a simplified density-based clustering pass: mutual-reachability
// distance over cosine distance, a minimum spanning tree, and a single
// global cut at the mean-plus-one-stddev edge weight. Connected components
// below minClusterSize after the cut are reassigned the noise label. This
// captures HDBSCAN's core idea (density-adaptive linkage via mutual
// reachability) without building the full condensed-tree / cluster-stability
// extraction machinery.
func hdbscan(points []Point, minClusterSize, minSamples int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = NoiseLabel
	}
	if n == 0 {
		return labels
	}
	if minSamples < 1 {
		minSamples = 1
	}
	if minSamples > n {
		minSamples = n
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			if i == j {
				continue
			}
			dist[i][j] = cosineDistance(points[i].Vector, points[j].Vector)
		}
	}

	coreDist := make([]float64, n)
	for i := 0; i < n; i++ {
		row := append([]float64{}, dist[i]...)
		sort.Float64s(row)
		idx := minSamples
		if idx >= len(row) {
			idx = len(row) - 1
		}
		coreDist[i] = row[idx]
	}

	mrd := func(i, j int) float64 {
		d := dist[i][j]
		if coreDist[i] > d {
			d = coreDist[i]
		}
		if coreDist[j] > d {
			d = coreDist[j]
		}
		return d
	}

	edges := primMST(n, mrd)
	if len(edges) == 0 {
		return labels
	}

	mean, stddev := edgeStats(edges)
	cutoff := mean + stddev

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, e := range edges {
		if e.weight <= cutoff {
			union(e.a, e.b)
		}
	}

	components := map[int][]int{}
	for i := 0; i < n; i++ {
		root := find(i)
		components[root] = append(components[root], i)
	}

	label := 0
	roots := make([]int, 0, len(components))
	for root := range components {
		roots = append(roots, root)
	}
	sort.Ints(roots)
	for _, root := range roots {
		members := components[root]
		if len(members) < minClusterSize {
			continue
		}
		for _, idx := range members {
			labels[idx] = label
		}
		label++
	}

	return labels
}

type mstEdge struct {
	a, b   int
	weight float64
}

// primMST builds a minimum spanning tree over a complete graph defined by
// weight(i, j), returning its edges.
func primMST(n int, weight func(i, j int) float64) []mstEdge {
	if n < 2 {
		return nil
	}
	inTree := make([]bool, n)
	minEdge := make([]float64, n)
	fromNode := make([]int, n)
	for i := range minEdge {
		minEdge[i] = -1
		fromNode[i] = -1
	}

	inTree[0] = true
	for j := 1; j < n; j++ {
		minEdge[j] = weight(0, j)
		fromNode[j] = 0
	}

	var edges []mstEdge
	for added := 1; added < n; added++ {
		next := -1
		best := -1.0
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if best < 0 || minEdge[j] < best {
				best = minEdge[j]
				next = j
			}
		}
		if next == -1 {
			break
		}
		inTree[next] = true
		edges = append(edges, mstEdge{a: fromNode[next], b: next, weight: best})

		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			w := weight(next, j)
			if minEdge[j] < 0 || w < minEdge[j] {
				minEdge[j] = w
				fromNode[j] = next
			}
		}
	}
	return edges
}

func edgeStats(edges []mstEdge) (mean, stddev float64) {
	if len(edges) == 0 {
		return 0, 0
	}
	var sum float64
	for _, e := range edges {
		sum += e.weight
	}
	mean = sum / float64(len(edges))

	var variance float64
	for _, e := range edges {
		d := e.weight - mean
		variance += d * d
	}
	variance /= float64(len(edges))
	stddev = math.Sqrt(variance)
	return mean, stddev
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
