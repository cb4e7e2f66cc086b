package vector

import (
	"math"
	"sort"
)

// SquaredL2 returns the squared Euclidean distance between a and b.
// Vectors must have the same length (caller's responsibility).
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// L2 returns the Euclidean distance between a and b.
func L2(a, b []float32) float64 {
	return math.Sqrt(SquaredL2(a, b))
}

// SortResults orders results by ascending distance, breaking ties by ascending ID.
func SortResults(results []*Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
}
