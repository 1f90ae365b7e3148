package mpnn

import "math"

// optimizer applies averaged, per-layer-clipped gradient updates. It
// supports plain SGD and Adam with bias correction.
type optimizer struct {
	lr       float64
	kind     string // "adam" or "sgd"
	beta1    float64
	beta2    float64
	epsilon  float64
	clipNorm float64

	t int // Adam timestep
}

func newOptimizer(cfg Config) *optimizer {
	return &optimizer{
		lr:       cfg.LearningRate,
		kind:     cfg.Optimizer,
		beta1:    cfg.Beta1,
		beta2:    cfg.Beta2,
		epsilon:  cfg.Epsilon,
		clipNorm: cfg.ClipNorm,
	}
}

// step applies one update to every layer. scale averages the accumulated
// gradients over the batch; each layer's gradient is clipped to clipNorm
// before the update.
func (o *optimizer) step(layers []*linear, scale float64) {
	o.t++
	for _, l := range layers {
		clip := 1.0
		if o.clipNorm > 0 {
			if norm := l.gradNorm(scale); norm > o.clipNorm {
				clip = o.clipNorm / norm
			}
		}
		eff := scale * clip

		if o.kind == "sgd" {
			for j := range l.dW {
				for i, g := range l.dW[j] {
					l.W[j][i] -= o.lr * g * eff
				}
			}
			for j, g := range l.dB {
				l.B[j] -= o.lr * g * eff
			}
			continue
		}

		// Adam with bias correction
		bc1 := 1 - math.Pow(o.beta1, float64(o.t))
		bc2 := 1 - math.Pow(o.beta2, float64(o.t))
		for j := range l.dW {
			for i := range l.dW[j] {
				g := l.dW[j][i] * eff
				l.mW[j][i] = o.beta1*l.mW[j][i] + (1-o.beta1)*g
				l.vW[j][i] = o.beta2*l.vW[j][i] + (1-o.beta2)*g*g
				mHat := l.mW[j][i] / bc1
				vHat := l.vW[j][i] / bc2
				l.W[j][i] -= o.lr * mHat / (math.Sqrt(vHat) + o.epsilon)
			}
		}
		for j := range l.dB {
			g := l.dB[j] * eff
			l.mB[j] = o.beta1*l.mB[j] + (1-o.beta1)*g
			l.vB[j] = o.beta2*l.vB[j] + (1-o.beta2)*g*g
			mHat := l.mB[j] / bc1
			vHat := l.vB[j] / bc2
			l.B[j] -= o.lr * mHat / (math.Sqrt(vHat) + o.epsilon)
		}
	}
}
