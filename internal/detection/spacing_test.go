package detection

import (
	"math"
	"reflect"
	"testing"
)

func TestDistinctPositions(t *testing.T) {
	tests := []struct {
		name string
		vals []int
		tol  int
		want []int
	}{
		{"merge close runs", []int{100, 51, 12, 50, 10}, 3, []int{11, 51, 100}},
		{"exact dedupe", []int{5, 5, 3}, 0, []int{3, 5}},
		{"chain merges", []int{0, 4, 8, 12}, 4, []int{6}},
		{"nothing to merge", []int{0, 70, 140}, 6, []int{0, 70, 140}},
		{"empty", nil, 6, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := distinctPositions(tt.vals, tt.tol); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("distinctPositions(%v, %d): got %v, want %v", tt.vals, tt.tol, got, tt.want)
			}
		})
	}
}

func TestDistinctPositions_DoesNotModifyInput(t *testing.T) {
	vals := []int{30, 10, 20}

	distinctPositions(vals, 0)

	if !reflect.DeepEqual(vals, []int{30, 10, 20}) {
		t.Errorf("input modified: %v", vals)
	}
}

func TestSpacingStats(t *testing.T) {
	mean, cv := spacingStats([]int{0, 10, 20, 30})
	if mean != 10 || cv != 0 {
		t.Errorf("regular spacing: got mean %f cv %f, want 10 and 0", mean, cv)
	}

	mean, cv = spacingStats([]int{0, 10, 30})
	if mean != 15 {
		t.Errorf("mean: got %f, want 15", mean)
	}
	if math.Abs(cv-1.0/3) > 1e-9 {
		t.Errorf("cv: got %f, want 1/3", cv)
	}
}

func TestSpacingStats_Degenerate(t *testing.T) {
	if _, cv := spacingStats([]int{42}); !math.IsInf(cv, 1) {
		t.Errorf("single position: got cv %f, want +Inf", cv)
	}
	if _, cv := spacingStats(nil); !math.IsInf(cv, 1) {
		t.Errorf("no positions: got cv %f, want +Inf", cv)
	}
}
