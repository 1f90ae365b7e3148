package mpnn

import (
	"math"
	"math/rand"
)

// linear is a fully connected layer with gradient accumulators and Adam
// moment buffers. Weights are stored row-major [out][in].
type linear struct {
	W [][]float64
	B []float64 // nil when the layer has no bias

	dW [][]float64
	dB []float64

	mW, vW [][]float64
	mB, vB []float64
}

func newLinear(in, out int, bias bool, rng *rand.Rand) *linear {
	l := &linear{
		W:  make([][]float64, out),
		dW: make([][]float64, out),
		mW: make([][]float64, out),
		vW: make([][]float64, out),
	}
	// Xavier/Glorot uniform initialization heuristic
	limit := math.Sqrt(6.0 / float64(in+out))
	for j := 0; j < out; j++ {
		row := make([]float64, in)
		for i := range row {
			row[i] = (rng.Float64()*2 - 1) * limit
		}
		l.W[j] = row
		l.dW[j] = make([]float64, in)
		l.mW[j] = make([]float64, in)
		l.vW[j] = make([]float64, in)
	}
	if bias {
		l.B = make([]float64, out)
		l.dB = make([]float64, out)
		l.mB = make([]float64, out)
		l.vB = make([]float64, out)
	}
	return l
}

func (l *linear) inDim() int  { return len(l.W[0]) }
func (l *linear) outDim() int { return len(l.W) }

// forward computes Wx (+ b).
func (l *linear) forward(x []float64) []float64 {
	out := make([]float64, len(l.W))
	for j, row := range l.W {
		var sum float64
		for i, w := range row {
			sum += w * x[i]
		}
		if l.B != nil {
			sum += l.B[j]
		}
		out[j] = sum
	}
	return out
}

// accumGrad adds the gradient contribution of one example: dW += dOut ⊗ x,
// dB += dOut.
func (l *linear) accumGrad(x, dOut []float64) {
	for j, g := range dOut {
		if g == 0 {
			continue
		}
		row := l.dW[j]
		for i, xi := range x {
			row[i] += g * xi
		}
		if l.dB != nil {
			l.dB[j] += g
		}
	}
}

// backward returns dx = Wᵀ·dOut without touching the accumulators.
func (l *linear) backward(dOut []float64) []float64 {
	dx := make([]float64, l.inDim())
	for j, g := range dOut {
		if g == 0 {
			continue
		}
		row := l.W[j]
		for i, w := range row {
			dx[i] += w * g
		}
	}
	return dx
}

func (l *linear) zeroGrad() {
	for j := range l.dW {
		row := l.dW[j]
		for i := range row {
			row[i] = 0
		}
	}
	for j := range l.dB {
		l.dB[j] = 0
	}
}

// gradNorm returns the L2 norm of the accumulated gradients scaled by scale.
func (l *linear) gradNorm(scale float64) float64 {
	var sq float64
	for j := range l.dW {
		for _, g := range l.dW[j] {
			g *= scale
			sq += g * g
		}
	}
	for _, g := range l.dB {
		g *= scale
		sq += g * g
	}
	return math.Sqrt(sq)
}
