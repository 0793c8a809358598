package pose

import "math"

// AssignHungarian solves the rectangular assignment problem for an n x m
// cost matrix using the Kuhn-Munkres algorithm (Jonker-Volgenant potential
// variant), in O(n³). It is used for optimal instance-to-track association,
// where the greedy nearest-neighbour alternative can split identities when
// two instances compete for the same track.
//
// The cost matrix entry C[i][j] is the gated dissimilarity between instance
// i and track j; entries at or above ForbiddenCost are never selected.
// Returns assignments[i] = column assigned to row i, or -1 if unassigned.
const ForbiddenCost = 1e18

// AssignHungarian computes the minimum-cost row-to-column assignment.
func AssignHungarian(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		result := make([]int, n)
		for i := range result {
			result[i] = -1
		}
		return result
	}

	// Square the matrix by padding with forbidden entries so excess rows
	// stay unassigned.
	dim := n
	if m > dim {
		dim = m
	}
	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			if i < n && j < m {
				c[i][j] = cost[i][j]
			} else {
				c[i][j] = ForbiddenCost
			}
		}
	}

	// 1-indexed internals keep the augmenting-path arithmetic clean.
	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1) // Row potentials
	v := make([]float64, dim+1) // Column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // way[j] = previous column in augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0 // Virtual column

		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		// Augment along the path.
		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if p[j] > 0 && p[j] <= dim {
			rowAssign[p[j]-1] = j - 1
		}
	}

	// Trim to original dimensions and reject forbidden assignments.
	result := make([]int, n)
	for i := 0; i < n; i++ {
		col := rowAssign[i]
		if col < 0 || col >= m || cost[i][col] >= ForbiddenCost {
			result[i] = -1
		} else {
			result[i] = col
		}
	}
	return result
}

// AssignGreedy is the simpler matching used when the tracker is configured
// for greedy association: pairs are taken in ascending cost order, each row
// and column used at most once. Deterministic for equal costs (row, then
// column order).
func AssignGreedy(cost [][]float64) []int {
	n := len(cost)
	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	if n == 0 || len(cost[0]) == 0 {
		return result
	}
	m := len(cost[0])

	type pair struct{ i, j int }
	usedRow := make([]bool, n)
	usedCol := make([]bool, m)
	for assigned := 0; assigned < n && assigned < m; assigned++ {
		best := ForbiddenCost
		bestPair := pair{-1, -1}
		for i := 0; i < n; i++ {
			if usedRow[i] {
				continue
			}
			for j := 0; j < m; j++ {
				if usedCol[j] {
					continue
				}
				if cost[i][j] < best {
					best = cost[i][j]
					bestPair = pair{i, j}
				}
			}
		}
		if bestPair.i < 0 {
			break
		}
		usedRow[bestPair.i] = true
		usedCol[bestPair.j] = true
		result[bestPair.i] = bestPair.j
	}
	return result
}
