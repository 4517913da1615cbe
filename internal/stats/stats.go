// Package stats summarises a decoded point cloud.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/dyuri/lasdump/internal/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Axis holds the summary of one coordinate or attribute
type Axis struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median float64 `json:"median"`
}

// Shape describes the spread of the cloud along its principal axes.
// Ratios are sqrt(lambda_i / lambda_max), with eigenvalues of the XYZ
// covariance matrix in ascending order.
type Shape struct {
	Eigenvalues [3]float64 `json:"eigenvalues"`
	MinorRatio  float64    `json:"minor_ratio"`
	MiddleRatio float64    `json:"middle_ratio"`
}

// Summary is the result of Summarize
type Summary struct {
	Count     int           `json:"count"`
	X         Axis          `json:"x"`
	Y         Axis          `json:"y"`
	Z         Axis          `json:"z"`
	Intensity Axis          `json:"intensity"`
	Returns   map[uint8]int `json:"returns"`
	Classes   map[uint8]int `json:"classes"`
	Shape     *Shape        `json:"shape,omitempty"`
}

// Summarize computes per-axis statistics and histograms over points.
// An empty input yields a zero Summary.
func Summarize(points []model.Point) *Summary {
	s := &Summary{
		Count:   len(points),
		Returns: make(map[uint8]int),
		Classes: make(map[uint8]int),
	}
	if len(points) == 0 {
		return s
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	zs := make([]float64, len(points))
	is := make([]float64, len(points))
	for i := range points {
		p := &points[i]
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
		is[i] = float64(p.Intensity)
		s.Returns[p.ReturnNumber]++
		s.Classes[p.Classification]++
	}

	s.Shape = shape(xs, ys, zs)
	s.X = summarizeAxis(xs)
	s.Y = summarizeAxis(ys)
	s.Z = summarizeAxis(zs)
	s.Intensity = summarizeAxis(is)
	return s
}

// summarizeAxis sorts v in place
func summarizeAxis(v []float64) Axis {
	var a Axis
	a.Min = floats.Min(v)
	a.Max = floats.Max(v)
	a.Mean, a.StdDev = stat.MeanStdDev(v, nil)
	if len(v) < 2 {
		a.StdDev = 0
	}

	sort.Float64s(v)
	a.Median = stat.Quantile(0.5, stat.Empirical, v, nil)
	return a
}

// shape needs at least 4 points for a meaningful tensor
func shape(xs, ys, zs []float64) *Shape {
	n := len(xs)
	if n < 4 {
		return nil
	}

	data := make([]float64, 0, 3*n)
	for i := 0; i < n; i++ {
		data = append(data, xs[i], ys[i], zs[i])
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, mat.NewDense(n, 3, data), nil)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, false) {
		return nil
	}
	vals := eig.Values(nil)

	sh := &Shape{}
	copy(sh.Eigenvalues[:], vals)
	if major := vals[2]; major > 0 {
		sh.MinorRatio = math.Sqrt(math.Max(vals[0], 0) / major)
		sh.MiddleRatio = math.Sqrt(math.Max(vals[1], 0) / major)
	}
	return sh
}

// Sample returns at most n points taken at an even stride, first point
// included. n <= 0 or n >= len(points) returns points unchanged.
func Sample(points []model.Point, n int) []model.Point {
	if n <= 0 || n >= len(points) {
		return points
	}
	out := make([]model.Point, n)
	stride := float64(len(points)) / float64(n)
	for i := range out {
		out[i] = points[int(float64(i)*stride)]
	}
	return out
}

// CheckBounds compares the observed extent with the header's bounding
// box. Each axis may exceed the box by half its scale factor, the
// rounding allowed when coordinates are quantised.
func (s *Summary) CheckBounds(h *model.PublicHeader) []string {
	if s.Count == 0 {
		return nil
	}

	checks := []struct {
		name          string
		axis          Axis
		min, max, tol float64
	}{
		{"x", s.X, h.MinX, h.MaxX, math.Abs(h.XScale) / 2},
		{"y", s.Y, h.MinY, h.MaxY, math.Abs(h.YScale) / 2},
		{"z", s.Z, h.MinZ, h.MaxZ, math.Abs(h.ZScale) / 2},
	}

	var issues []string
	for _, c := range checks {
		if c.axis.Min < c.min-c.tol {
			issues = append(issues, fmt.Sprintf("%s minimum %g is below header min_%s %g", c.name, c.axis.Min, c.name, c.min))
		}
		if c.axis.Max > c.max+c.tol {
			issues = append(issues, fmt.Sprintf("%s maximum %g is above header max_%s %g", c.name, c.axis.Max, c.name, c.max))
		}
	}
	return issues
}

// SortedKeys returns histogram keys in ascending order
func SortedKeys(m map[uint8]int) []uint8 {
	keys := make([]uint8, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
