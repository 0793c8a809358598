package pose

import (
	"testing"
)

func TestAssignHungarian_Empty(t *testing.T) {
	if result := AssignHungarian(nil); result != nil {
		t.Errorf("expected nil for empty cost matrix, got %v", result)
	}
}

func TestAssignHungarian_SingleElement(t *testing.T) {
	result := AssignHungarian([][]float64{{5}})
	if len(result) != 1 || result[0] != 0 {
		t.Errorf("expected [0], got %v", result)
	}
}

func TestAssignHungarian_SquareOptimal(t *testing.T) {
	// Classic 3x3 assignment problem:
	//   [1 2 3]     Optimal: row0→col0 (1), row1→col1 (4), row2→col2 (5) = 10
	//   [4 4 6]     NOT: row0→col0 (1), row1→col2 (6), row2→col1 (8) = 15
	//   [9 8 5]
	cost := [][]float64{
		{1, 2, 3},
		{4, 4, 6},
		{9, 8, 5},
	}
	result := AssignHungarian(cost)
	if len(result) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(result))
	}

	total := 0.0
	for i, j := range result {
		if j < 0 {
			t.Errorf("row %d unassigned", i)
			continue
		}
		total += cost[i][j]
	}
	if total != 10 {
		t.Errorf("expected optimal cost 10, got %v (assignments: %v)", total, result)
	}
}

func TestAssignHungarian_GreedyTrap(t *testing.T) {
	// Greedy takes (0,0)=1 forcing (1,1)=10; optimal is (0,1)+(1,0)=2+2=4.
	cost := [][]float64{
		{1, 2},
		{2, 10},
	}
	result := AssignHungarian(cost)
	if result[0] != 1 || result[1] != 0 {
		t.Errorf("expected [1 0], got %v", result)
	}
}

func TestAssignHungarian_Rectangular(t *testing.T) {
	// More rows than columns: one row must stay unassigned.
	cost := [][]float64{
		{1, 5},
		{2, 1},
		{3, 3},
	}
	result := AssignHungarian(cost)
	assigned := 0
	seen := map[int]bool{}
	for _, j := range result {
		if j >= 0 {
			if seen[j] {
				t.Fatalf("column %d assigned twice: %v", j, result)
			}
			seen[j] = true
			assigned++
		}
	}
	if assigned != 2 {
		t.Errorf("expected 2 assignments for a 3x2 matrix, got %d (%v)", assigned, result)
	}
	if result[0] != 0 || result[1] != 1 {
		t.Errorf("expected rows 0 and 1 to take the cheap columns, got %v", result)
	}
}

func TestAssignHungarian_Forbidden(t *testing.T) {
	cost := [][]float64{
		{1, 2},
		{ForbiddenCost, ForbiddenCost},
	}
	result := AssignHungarian(cost)
	if result[0] != 0 {
		t.Errorf("row 0 should take column 0, got %v", result)
	}
	if result[1] != -1 {
		t.Errorf("row 1 has only forbidden columns, want -1, got %d", result[1])
	}
}

func TestAssignGreedy(t *testing.T) {
	cost := [][]float64{
		{1, 2},
		{2, 10},
	}
	result := AssignGreedy(cost)
	// Greedy commits to the globally cheapest pair first.
	if result[0] != 0 || result[1] != 1 {
		t.Errorf("expected [0 1], got %v", result)
	}
}

func TestAssignGreedy_Forbidden(t *testing.T) {
	cost := [][]float64{
		{ForbiddenCost, ForbiddenCost},
	}
	result := AssignGreedy(cost)
	if result[0] != -1 {
		t.Errorf("expected -1 for all-forbidden row, got %d", result[0])
	}
}
