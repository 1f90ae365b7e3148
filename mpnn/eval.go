package mpnn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics holds regression quality for one task.
type Metrics struct {
	MAE  float64
	RMSE float64
	R2   float64
}

// Evaluate computes MAE, RMSE and R² for one prediction column against one
// target column, skipping NaN targets.
func Evaluate(preds, targets []float64) (Metrics, error) {
	if len(preds) != len(targets) {
		return Metrics{}, fmt.Errorf("got %d predictions for %d targets", len(preds), len(targets))
	}
	var p, t []float64
	for i := range targets {
		if math.IsNaN(targets[i]) {
			continue
		}
		p = append(p, preds[i])
		t = append(t, targets[i])
	}
	if len(t) == 0 {
		return Metrics{}, fmt.Errorf("no labeled targets to evaluate")
	}

	var absSum, sqSum float64
	for i := range t {
		diff := p[i] - t[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
	}
	n := float64(len(t))

	mean := stat.Mean(t, nil)
	var ssTot float64
	for _, v := range t {
		d := v - mean
		ssTot += d * d
	}
	r2 := math.NaN()
	if ssTot > 0 {
		r2 = 1 - sqSum/ssTot
	}

	return Metrics{
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
		R2:   r2,
	}, nil
}

// Column extracts task j from prediction or target rows.
func Column(rows [][]float64, j int) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = rows[i][j]
	}
	return out
}
