package selection

import (
	"fmt"
	"math"

	"github.com/absmach/fedasync/pkg/fl"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// dividers splits [min(values), max(values)] into bins equal-width bins. The
// upper edge is nudged up so that the maximum falls inside the last bin.
func dividers(values []float64, bins int) []float64 {
	lo, hi := floats.Min(values), floats.Max(values)

	return floats.Span(make([]float64, bins+1), lo, math.Nextafter(hi, math.Inf(1)))
}

// entropy is the base 2 Shannon entropy of a count table.
func entropy[K comparable](counts map[K]int, total int) float64 {
	p := make([]float64, 0, len(counts))
	for _, c := range counts {
		p = append(p, float64(c))
	}
	floats.Scale(1/float64(total), p)

	return stat.Entropy(p) / math.Ln2
}

// mutualInformation returns H(x) + H(y) - H(x, y) over a bins x bins grid.
func mutualInformation(x, y []float64, bins int) float64 {
	if len(x) == 0 {
		return 0
	}

	dx, dy := dividers(x, bins), dividers(y, bins)
	cx := make(map[int]int, bins)
	cy := make(map[int]int, bins)
	cxy := make(map[[2]int]int, bins)
	for i := range x {
		ix, iy := floats.Within(dx, x[i]), floats.Within(dy, y[i])
		cx[ix]++
		cy[iy]++
		cxy[[2]int{ix, iy}]++
	}

	n := len(x)

	return entropy(cx, n) + entropy(cy, n) - entropy(cxy, n)
}

// Delta sums the mutual information between every local tensor and its global
// counterpart.
func Delta(local, global fl.Params, bins int) (float64, error) {
	if err := global.CheckSchema(local); err != nil {
		return 0, err
	}
	if !local.Finite() || !global.Finite() {
		return 0, fmt.Errorf("%w: non-finite parameters", ErrNotFinite)
	}

	delta := 0.0
	for _, name := range local.Names() {
		delta += mutualInformation(local[name].Data, global[name].Data, bins)
	}

	return delta, nil
}
