// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package extraction

import (
	"math"
	"sort"
)

// computeStats summarizes at least two numeric values. variancePercent
// is (max - min) / |mean|; it is undefined when the mean is zero, and
// the caller skips the field in that case.
func computeStats(values []float64) *FieldStats {
	if len(values) < 2 {
		return nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))
	if mean == 0 {
		return nil
	}

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	var sqSum float64
	for _, v := range sorted {
		d := v - mean
		sqSum += d * d
	}
	stdDev := math.Sqrt(sqSum / float64(len(sorted)))

	return &FieldStats{
		Min:             sorted[0],
		Max:             sorted[len(sorted)-1],
		Mean:            mean,
		Median:          median,
		StdDev:          stdDev,
		VariancePercent: (sorted[len(sorted)-1] - sorted[0]) / math.Abs(mean),
	}
}
