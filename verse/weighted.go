package verse

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SampleWeighted draws one item with probability proportional to its weight.
//
// A uniform r is drawn from [0, sum(weights)) and the items are walked,
// subtracting each weight from r until an item's weight exceeds what is left.
// If floating-point drift exhausts the walk, the last item with a positive
// weight is returned. When no weight is positive (or the sum is not finite)
// the draw is uniform. Negative and NaN weights count as zero.
//
// items and weights must have the same non-zero length.
func SampleWeighted[T any](src Source, items []T, weights []float64) T {
	clean := make([]float64, len(weights))
	last := -1
	for i, w := range weights {
		if w > 0 {
			clean[i] = w
			last = i
		}
	}

	sum := floats.Sum(clean)
	if last < 0 || math.IsInf(sum, 0) || math.IsNaN(sum) {
		return items[src.IntN(len(items))]
	}

	r := src.Float64() * sum
	for i, w := range clean {
		if r < w {
			return items[i]
		}
		r -= w
	}

	return items[last]
}
