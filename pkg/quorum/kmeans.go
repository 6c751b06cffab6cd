package quorum

import (
	"math"
	"slices"
)

const maxIterations = 100

// clustering is a one-dimensional k-means fit.
type clustering struct {
	centroids []float64
	labels    []int
	sizes     []int
}

// fitKMeans runs Lloyd iterations on sorted data starting from quantile
// centroids, so the same input always yields the same clusters.
func fitKMeans(sorted []float64, k int) clustering {
	n := len(sorted)
	c := clustering{
		centroids: make([]float64, k),
		labels:    make([]int, n),
		sizes:     make([]int, k),
	}
	for i := range k {
		c.centroids[i] = sorted[(2*i+1)*n/(2*k)]
	}

	for range maxIterations {
		changed := false
		for i, x := range sorted {
			best, bestDist := 0, math.MaxFloat64
			for j, centroid := range c.centroids {
				if d := math.Abs(x - centroid); d < bestDist {
					best, bestDist = j, d
				}
			}
			if c.labels[i] != best {
				c.labels[i] = best
				changed = true
			}
		}

		sums := make([]float64, k)
		clear(c.sizes)
		for i, x := range sorted {
			sums[c.labels[i]] += x
			c.sizes[c.labels[i]]++
		}
		for j := range k {
			if c.sizes[j] > 0 {
				c.centroids[j] = sums[j] / float64(c.sizes[j])
			}
		}

		if !changed {
			break
		}
	}

	return c
}

// silhouette is the mean silhouette coefficient of the fit. A fit with fewer
// than two non-empty clusters scores zero.
func silhouette(data []float64, c clustering) float64 {
	nonEmpty := 0
	for _, s := range c.sizes {
		if s > 0 {
			nonEmpty++
		}
	}
	if nonEmpty < 2 {
		return 0
	}

	total := 0.0
	for i, x := range data {
		own := c.labels[i]
		if c.sizes[own] <= 1 {
			continue
		}

		dists := make([]float64, len(c.sizes))
		for j, y := range data {
			dists[c.labels[j]] += math.Abs(x - y)
		}

		a := dists[own] / float64(c.sizes[own]-1)
		b := math.MaxFloat64
		for cl, size := range c.sizes {
			if cl == own || size == 0 {
				continue
			}
			b = min(b, dists[cl]/float64(size))
		}

		if m := max(a, b); m > 0 {
			total += (b - a) / m
		}
	}

	return total / float64(len(data))
}

// fastestClusterSize returns the population of the non-empty cluster with the
// smallest centroid.
func (c clustering) fastestClusterSize() int {
	best, size := math.MaxFloat64, 0
	for j, centroid := range c.centroids {
		if c.sizes[j] > 0 && centroid < best {
			best, size = centroid, c.sizes[j]
		}
	}

	return size
}

func sortedCopy(times []float64) []float64 {
	s := slices.Clone(times)
	slices.Sort(s)

	return s
}
