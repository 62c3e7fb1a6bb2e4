// Package consensus computes round statistics and the agreement verdict for
// a revealed set of votes. Everything here is a pure function of the vote
// values: inputs are sorted before aggregating so results never depend on
// submission or map iteration order.
package consensus

import (
	"math"
	"sort"
	"strconv"

	"github.com/pointdeck/pointdeck/pkg/types"
)

const (
	// Threshold is the fraction of numeric votes that must sit within
	// Tolerance of the median for consensus to hold.
	Threshold = 0.8
	Tolerance = 1.0
)

// Calculate aggregates the given vote values. Non-numeric tokens ("?",
// "coffee") are excluded from numeric statistics but still counted in the
// distribution and mode.
func Calculate(values []string) types.ConsensusResult {
	res := types.ConsensusResult{
		Mode:         []string{},
		Distribution: make(map[string]int, len(values)),
	}

	var nums []float64
	for _, v := range values {
		res.Distribution[v]++
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			nums = append(nums, f)
		}
	}
	res.Mode = modeOf(res.Distribution)
	res.NumericCount = len(nums)
	if len(nums) == 0 {
		return res
	}

	sort.Float64s(nums)
	res.Mean = mean(nums)
	res.Median = median(nums)
	res.StdDev = sampleStdDev(nums, res.Mean)
	res.Outliers = outliers(nums)

	within := 0
	for _, f := range nums {
		if math.Abs(f-res.Median) <= Tolerance {
			within++
		}
	}
	if float64(within) >= Threshold*float64(len(nums)) {
		res.HasConsensus = true
		res.SuggestedValue = strconv.FormatFloat(res.Median, 'f', -1, 64)
	}
	return res
}

func mean(sorted []float64) float64 {
	sum := 0.0
	for _, f := range sorted {
		sum += f
	}
	return sum / float64(len(sorted))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func sampleStdDev(sorted []float64, mean float64) float64 {
	if len(sorted) < 2 {
		return 0
	}
	sum := 0.0
	for _, f := range sorted {
		d := f - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(sorted)-1))
}

// modeOf returns every value tied at the maximum frequency, sorted for
// determinism.
func modeOf(dist map[string]int) []string {
	max := 0
	for _, c := range dist {
		if c > max {
			max = c
		}
	}
	mode := []string{}
	for v, c := range dist {
		if c == max {
			mode = append(mode, v)
		}
	}
	sort.Strings(mode)
	return mode
}

// percentile uses linear interpolation between closest ranks (p in [0,1]).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lo := int(math.Floor(idx))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// outliers flags values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR]. Diagnostic
// only; never gates the consensus verdict.
func outliers(sorted []float64) []float64 {
	if len(sorted) < 4 {
		return nil
	}
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr

	var out []float64
	for _, f := range sorted {
		if f < lo || f > hi {
			out = append(out, f)
		}
	}
	return out
}
