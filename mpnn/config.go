package mpnn

import "time"

// Supported model types.
const (
	SingleFidelity            = "single_fidelity"
	MultiTarget               = "multi_target"
	MultiFidelity             = "multi_fidelity"
	MultiFidelityWeightShared = "multi_fidelity_weight_sharing"
	DeltaML                   = "delta_ml"
)

// ModelTypes lists every model type NewModel accepts.
var ModelTypes = []string{
	SingleFidelity,
	MultiTarget,
	MultiFidelity,
	MultiFidelityWeightShared,
	DeltaML,
}

// Config holds the hyperparameters for the message passing network and its
// trainer. Zero values are replaced with defaults by NewModel.
type Config struct {
	// Hidden is the bond message width (default 300).
	Hidden int

	// Depth is the number of message passing steps (default 3).
	Depth int

	// FFNHidden is the readout head's hidden width (default Hidden).
	FFNHidden int

	// FFNLayers is the number of hidden layers in the readout head
	// (default 2).
	FFNLayers int

	// LearningRate used by the optimizer (default 0.001).
	LearningRate float64

	// Epochs to train for (default 30).
	Epochs int

	// BatchSize for mini-batch updates (default 50).
	BatchSize int

	// Seed controls RNG for weight init and shuffling. If zero, a
	// time-based seed is used.
	Seed int64

	// Optimizer selects "adam" or "sgd" (default "adam").
	Optimizer string

	// Adam hyperparameters (defaults 0.9 / 0.999 / 1e-8).
	Beta1   float64
	Beta2   float64
	Epsilon float64

	// ClipNorm is the per-layer gradient clipping threshold (default 10).
	ClipNorm float64
}

func (c Config) withDefaults() Config {
	if c.Hidden == 0 {
		c.Hidden = 300
	}
	if c.Depth == 0 {
		c.Depth = 3
	}
	if c.FFNHidden == 0 {
		c.FFNHidden = c.Hidden
	}
	if c.FFNLayers == 0 {
		c.FFNLayers = 2
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.001
	}
	if c.Epochs == 0 {
		c.Epochs = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.Optimizer == "" {
		c.Optimizer = "adam"
	}
	if c.Beta1 == 0 {
		c.Beta1 = 0.9
	}
	if c.Beta2 == 0 {
		c.Beta2 = 0.999
	}
	if c.Epsilon == 0 {
		c.Epsilon = 1e-8
	}
	if c.ClipNorm == 0 {
		c.ClipNorm = 10
	}
	return c
}
