package mpnn

import "math"

// maskedMSE computes mean squared error over the non-NaN targets and the
// matching gradient with respect to the predictions. A NaN target means the
// example carries no label for that task; it contributes nothing to the
// loss and a zero gradient.
func maskedMSE(preds, targets [][]float64) (float64, [][]float64) {
	grad := make([][]float64, len(preds))
	var sum float64
	var count int
	for i := range preds {
		grad[i] = make([]float64, len(preds[i]))
		for j := range preds[i] {
			if math.IsNaN(targets[i][j]) {
				continue
			}
			diff := preds[i][j] - targets[i][j]
			sum += diff * diff
			count++
		}
	}
	if count == 0 {
		return 0, grad
	}
	inv := 1.0 / float64(count)
	for i := range preds {
		for j := range preds[i] {
			if math.IsNaN(targets[i][j]) {
				continue
			}
			grad[i][j] = 2 * (preds[i][j] - targets[i][j]) * inv
		}
	}
	return sum * inv, grad
}
