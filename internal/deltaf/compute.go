// Package deltaf normalizes fluorescence traces to ΔF/F₀.
//
// The baseline F₀ is estimated per ROI with a percentile, mean, or median
// statistic, either over the whole trace or over a rolling window. Rolling
// windows shift to fit inside the trace, so every baseline sample is computed
// from exactly Window real samples and no padding is invented at the edges.
// The rolling percentile runs in O(n log n) per trace.
package deltaf

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Method names accepted by Settings.
const (
	MethodPercentile = "percentile"
	MethodMean       = "mean"
	MethodMedian     = "median"
)

// Window modes accepted by Settings.
const (
	WindowTrailing = "trailing"
	WindowCentered = "centered"
)

// Baselines below this magnitude cannot be divided by.
const degenerateEpsilon = 1e-12

// ErrWindowTooLarge reports a rolling window wider than the trace.
var ErrWindowTooLarge = errors.New("rolling window wider than trace")

// Settings selects the baseline estimator.
type Settings struct {
	Method     string
	Percentile float64
	Window     int
	WindowMode string
}

// DefaultSettings returns the 5th-percentile whole-trace baseline.
func DefaultSettings() Settings {
	return Settings{Method: MethodPercentile, Percentile: 5, Window: 0, WindowMode: WindowTrailing}
}

// Validate checks the estimator selection.
func (s Settings) Validate() error {
	switch s.Method {
	case MethodPercentile:
		if s.Percentile < 0 || s.Percentile > 100 {
			return fmt.Errorf("percentile must be within [0, 100], got %g", s.Percentile)
		}
	case MethodMean, MethodMedian:
	default:
		return fmt.Errorf("unknown method %q", s.Method)
	}
	if s.Window < 0 {
		return fmt.Errorf("window must be non-negative, got %d", s.Window)
	}
	switch s.WindowMode {
	case WindowTrailing, WindowCentered:
	default:
		return fmt.Errorf("unknown window mode %q", s.WindowMode)
	}
	return nil
}

// DegenerateError reports a baseline too close to zero to divide by.
type DegenerateError struct {
	ROI    int // -1 when the trace has no ROI association
	Sample int
	F0     float64
}

func (e *DegenerateError) Error() string {
	if e.ROI >= 0 {
		return fmt.Sprintf("baseline %.3g at roi %d sample %d is too close to zero", e.F0, e.ROI, e.Sample)
	}
	return fmt.Sprintf("baseline %.3g at sample %d is too close to zero", e.F0, e.Sample)
}

// Compute returns the ΔF/F₀ trace for one ROI.
func Compute(trace []float64, settings Settings) ([]float64, error) {
	baseline, err := Baseline(trace, settings)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(trace))
	for i, f := range trace {
		f0 := baseline[i]
		if math.Abs(f0) < degenerateEpsilon {
			return nil, &DegenerateError{ROI: -1, Sample: i, F0: f0}
		}
		out[i] = (f - f0) / f0
	}
	return out, nil
}

// ComputeMatrix runs Compute over every row of an (rois, samples) matrix
// stored row-major in traces.
func ComputeMatrix(traces []float64, rois, samples int, settings Settings) ([]float64, error) {
	if rois <= 0 || samples <= 0 {
		return nil, fmt.Errorf("matrix dimensions must be positive, got %dx%d", rois, samples)
	}
	if len(traces) != rois*samples {
		return nil, fmt.Errorf("trace matrix has %d values, want %d", len(traces), rois*samples)
	}
	out := make([]float64, len(traces))
	for r := 0; r < rois; r++ {
		row, err := Compute(traces[r*samples:(r+1)*samples], settings)
		if err != nil {
			var degenerate *DegenerateError
			if errors.As(err, &degenerate) {
				degenerate.ROI = r
				return nil, err
			}
			return nil, fmt.Errorf("roi %d: %w", r, err)
		}
		copy(out[r*samples:], row)
	}
	return out, nil
}

// Baseline returns the per-sample F₀ estimate for one trace. Window 0 and
// Window equal to the trace length both produce a constant whole-trace
// baseline.
func Baseline(trace []float64, settings Settings) ([]float64, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	n := len(trace)
	if n == 0 {
		return nil, errors.New("empty trace")
	}
	window := settings.Window
	if window > n {
		return nil, fmt.Errorf("%w: window %d, trace %d", ErrWindowTooLarge, window, n)
	}
	if window == 0 || window == n {
		f0 := staticBaseline(trace, settings)
		out := make([]float64, n)
		for i := range out {
			out[i] = f0
		}
		return out, nil
	}
	switch settings.Method {
	case MethodMean:
		return rollingMean(trace, window, settings.WindowMode), nil
	case MethodMedian:
		return rollingPercentile(trace, window, 50, settings.WindowMode), nil
	default:
		return rollingPercentile(trace, window, settings.Percentile, settings.WindowMode), nil
	}
}

func staticBaseline(trace []float64, settings Settings) float64 {
	switch settings.Method {
	case MethodMean:
		return stat.Mean(trace, nil)
	case MethodMedian:
		return percentileOf(trace, 50)
	default:
		return percentileOf(trace, settings.Percentile)
	}
}

func percentileOf(trace []float64, p float64) float64 {
	sorted := append([]float64(nil), trace...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

// percentileSorted interpolates linearly at rank p/100*(n-1), matching the
// estimator the rest of the pipeline's tooling uses.
func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	if frac == 0 {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// windowStart places a window of the given width so it covers sample i,
// shifted where needed to stay inside [0, n).
func windowStart(i, n, window int, mode string) int {
	var start int
	if mode == WindowCentered {
		start = i - (window-1)/2
	} else {
		start = i - window + 1
	}
	if start < 0 {
		start = 0
	}
	if start > n-window {
		start = n - window
	}
	return start
}

func rollingMean(trace []float64, window int, mode string) []float64 {
	n := len(trace)
	prefix := make([]float64, n+1)
	for i, v := range trace {
		prefix[i+1] = prefix[i] + v
	}
	out := make([]float64, n)
	for i := range out {
		start := windowStart(i, n, window, mode)
		out[i] = (prefix[start+window] - prefix[start]) / float64(window)
	}
	return out
}

// rollingPercentile slides a fixed-width window across the trace and reads
// the interpolated percentile from a Fenwick tree over rank-compressed
// values. Window starts are monotone in i, so the whole sweep performs O(n)
// tree updates of O(log n) each.
func rollingPercentile(trace []float64, window int, p float64, mode string) []float64 {
	n := len(trace)
	sorted := append([]float64(nil), trace...)
	sort.Float64s(sorted)
	unique := make([]float64, 0, n)
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			unique = append(unique, v)
		}
	}
	ranks := make([]int, n)
	for i, v := range trace {
		ranks[i] = sort.SearchFloat64s(unique, v)
	}

	tree := newFenwick(len(unique))
	for j := 0; j < window; j++ {
		tree.add(ranks[j], 1)
	}

	rank := p / 100 * float64(window-1)
	lo := int(math.Floor(rank))
	frac := rank - float64(lo)
	if lo >= window-1 {
		lo = window - 1
		frac = 0
	}

	out := make([]float64, n)
	start := 0
	for i := 0; i < n; i++ {
		want := windowStart(i, n, window, mode)
		for start < want {
			tree.add(ranks[start], -1)
			tree.add(ranks[start+window], 1)
			start++
		}
		value := unique[tree.kth(lo+1)]
		if frac != 0 {
			next := unique[tree.kth(lo+2)]
			value += (next - value) * frac
		}
		out[i] = value
	}
	return out
}

type fenwick struct {
	tree   []int
	size   int
	topBit int
}

func newFenwick(size int) *fenwick {
	top := 1
	for top*2 <= size {
		top *= 2
	}
	return &fenwick{tree: make([]int, size+1), size: size, topBit: top}
}

func (f *fenwick) add(index, delta int) {
	for i := index + 1; i <= f.size; i += i & (-i) {
		f.tree[i] += delta
	}
}

// kth returns the index of the k-th smallest tracked value, 1-based k.
func (f *fenwick) kth(k int) int {
	index := 0
	for bit := f.topBit; bit > 0; bit >>= 1 {
		next := index + bit
		if next <= f.size && f.tree[next] < k {
			index = next
			k -= f.tree[next]
		}
	}
	return index
}
