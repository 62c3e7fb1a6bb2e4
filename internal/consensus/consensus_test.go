package consensus

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculate_Verdict(t *testing.T) {
	cases := []struct {
		name          string
		values        []string
		wantConsensus bool
		wantSuggested string
	}{
		{
			// 3 of 4 within tolerance of median 5 is 75%, under the 80% bar.
			name:          "near miss stays below threshold",
			values:        []string{"5", "5", "5", "8"},
			wantConsensus: false,
		},
		{
			name:          "unanimous votes reach consensus",
			values:        []string{"5", "5", "5", "5"},
			wantConsensus: true,
			wantSuggested: "5",
		},
		{
			name:          "spread votes with symbolic never agree",
			values:        []string{"1", "8", "13", "?"},
			wantConsensus: false,
		},
		{
			name:          "adjacent values within tolerance agree",
			values:        []string{"5", "5", "6", "6", "5"},
			wantConsensus: true,
			wantSuggested: "5",
		},
		{
			name:          "only symbolic votes",
			values:        []string{"?", "coffee"},
			wantConsensus: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Calculate(tc.values)
			if res.HasConsensus != tc.wantConsensus {
				t.Fatalf("HasConsensus: got %v, want %v", res.HasConsensus, tc.wantConsensus)
			}
			if tc.wantSuggested != "" && res.SuggestedValue != tc.wantSuggested {
				t.Fatalf("SuggestedValue: got %q, want %q", res.SuggestedValue, tc.wantSuggested)
			}
		})
	}
}

func TestCalculate_Statistics(t *testing.T) {
	res := Calculate([]string{"5", "5", "5", "8"})

	if !almostEqual(res.Mean, 5.75) {
		t.Fatalf("mean: got %v, want 5.75", res.Mean)
	}
	if !almostEqual(res.Median, 5) {
		t.Fatalf("median: got %v, want 5", res.Median)
	}
	if len(res.Mode) != 1 || res.Mode[0] != "5" {
		t.Fatalf("mode: got %v, want [5]", res.Mode)
	}
	if !almostEqual(res.StdDev, 1.5) {
		t.Fatalf("stddev: got %v, want 1.5", res.StdDev)
	}
	if res.NumericCount != 4 {
		t.Fatalf("numeric count: got %d, want 4", res.NumericCount)
	}
}

func TestCalculate_MedianEvenCount(t *testing.T) {
	res := Calculate([]string{"3", "5", "8", "13"})
	if !almostEqual(res.Median, 6.5) {
		t.Fatalf("median: got %v, want 6.5", res.Median)
	}
}

func TestCalculate_SymbolicExcludedFromNumbers(t *testing.T) {
	res := Calculate([]string{"5", "5", "?", "coffee"})
	if res.NumericCount != 2 {
		t.Fatalf("numeric count: got %d, want 2", res.NumericCount)
	}
	if res.Distribution["?"] != 1 || res.Distribution["coffee"] != 1 {
		t.Fatalf("symbolic votes missing from distribution: %v", res.Distribution)
	}
	// Two numeric fives agree with themselves.
	if !res.HasConsensus {
		t.Fatalf("expected consensus over numeric subset")
	}
}

func TestCalculate_ModeTies(t *testing.T) {
	res := Calculate([]string{"3", "3", "8", "8", "5"})
	if len(res.Mode) != 2 || res.Mode[0] != "3" || res.Mode[1] != "8" {
		t.Fatalf("mode: got %v, want [3 8]", res.Mode)
	}
}

func TestCalculate_Outliers(t *testing.T) {
	res := Calculate([]string{"5", "5", "5", "5", "5", "5", "5", "100"})
	if len(res.Outliers) != 1 || !almostEqual(res.Outliers[0], 100) {
		t.Fatalf("outliers: got %v, want [100]", res.Outliers)
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	a := Calculate([]string{"8", "3", "5", "13", "?"})
	b := Calculate([]string{"?", "13", "5", "3", "8"})
	if a.Mean != b.Mean || a.Median != b.Median || a.StdDev != b.StdDev {
		t.Fatalf("statistics depend on input order: %+v vs %+v", a, b)
	}
}
