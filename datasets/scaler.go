package datasets

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes target columns to zero mean and unit variance. NaN
// entries (missing fidelity labels) are ignored when fitting and preserved
// when transforming.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-column mean and standard deviation over the
// non-NaN entries of targets.
func FitScaler(targets [][]float64) (*Scaler, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("cannot fit scaler on empty targets")
	}
	dim := len(targets[0])
	s := &Scaler{
		Mean: make([]float64, dim),
		Std:  make([]float64, dim),
	}
	for j := 0; j < dim; j++ {
		var col []float64
		for i := range targets {
			if v := targets[i][j]; !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		if len(col) == 0 {
			return nil, fmt.Errorf("target column %d has no labeled entries", j)
		}
		s.Mean[j] = stat.Mean(col, nil)
		if len(col) > 1 {
			s.Std[j] = stat.StdDev(col, nil)
		}
		if s.Std[j] == 0 || math.IsNaN(s.Std[j]) {
			s.Std[j] = 1
		}
	}
	return s, nil
}

// Transform standardizes targets in place and returns them.
func (s *Scaler) Transform(targets [][]float64) [][]float64 {
	for i := range targets {
		for j := range targets[i] {
			if !math.IsNaN(targets[i][j]) {
				targets[i][j] = (targets[i][j] - s.Mean[j]) / s.Std[j]
			}
		}
	}
	return targets
}

// InverseTransform restores original units in place and returns targets.
func (s *Scaler) InverseTransform(targets [][]float64) [][]float64 {
	for i := range targets {
		for j := range targets[i] {
			if !math.IsNaN(targets[i][j]) {
				targets[i][j] = targets[i][j]*s.Std[j] + s.Mean[j]
			}
		}
	}
	return targets
}
