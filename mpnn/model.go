package mpnn

import (
	"fmt"
	"math/rand"

	"github.com/mfchem/mfchem/datasets"
)

// Model is a message passing regression network in one of five
// configurations. Single fidelity and delta learning predict one task;
// the multi-target and multi-fidelity variants predict two, with the low
// fidelity task first and the high fidelity task second.
//
// The multi-fidelity variants feed the low fidelity prediction into the
// high fidelity head, so high fidelity errors backpropagate through the
// low fidelity branch. Weight sharing uses a single encoder for both
// branches; the plain multi-fidelity model trains a separate low fidelity
// encoder.
type Model struct {
	Config Config
	Type   string

	// NTasks is the width of a prediction row.
	NTasks int

	encHF  *encoder
	encLF  *encoder // non-nil only for the multi-fidelity variants
	headHF *ffn
	headLF *ffn

	featDim int // extra feature width for delta learning
	rng     *rand.Rand
}

// NewModel builds a model of the given type for the given feature
// dimensions. featureDim is the width of extra per-molecule inputs and
// must be positive for delta learning, zero otherwise.
func NewModel(modelType string, atomDim, bondDim, featureDim int, cfg Config) (*Model, error) {
	cfg = cfg.withDefaults()
	if atomDim <= 0 || bondDim <= 0 {
		return nil, fmt.Errorf("invalid feature dims (%d,%d)", atomDim, bondDim)
	}
	m := &Model{
		Config:  cfg,
		Type:    modelType,
		featDim: featureDim,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
	h := cfg.Hidden

	switch modelType {
	case SingleFidelity:
		m.NTasks = 1
		m.encHF = newEncoder(atomDim, bondDim, h, cfg.Depth, m.rng)
		m.headHF = newFFN(h, cfg.FFNHidden, 1, cfg.FFNLayers, m.rng)
	case MultiTarget:
		m.NTasks = 2
		m.encHF = newEncoder(atomDim, bondDim, h, cfg.Depth, m.rng)
		m.headHF = newFFN(h, cfg.FFNHidden, 2, cfg.FFNLayers, m.rng)
	case MultiFidelity, MultiFidelityWeightShared:
		m.NTasks = 2
		m.encHF = newEncoder(atomDim, bondDim, h, cfg.Depth, m.rng)
		if modelType == MultiFidelity {
			m.encLF = newEncoder(atomDim, bondDim, h, cfg.Depth, m.rng)
		} else {
			m.encLF = m.encHF
		}
		m.headLF = newFFN(h, cfg.FFNHidden, 1, cfg.FFNLayers, m.rng)
		m.headHF = newFFN(h+1, cfg.FFNHidden, 1, cfg.FFNLayers, m.rng)
	case DeltaML:
		if featureDim <= 0 {
			return nil, fmt.Errorf("delta learning needs extra features, got dim %d", featureDim)
		}
		m.NTasks = 1
		m.encHF = newEncoder(atomDim, bondDim, h, cfg.Depth, m.rng)
		m.headHF = newFFN(h+featureDim, cfg.FFNHidden, 1, cfg.FFNLayers, m.rng)
	default:
		return nil, fmt.Errorf("unknown model type %q (supported: %v)", modelType, ModelTypes)
	}
	return m, nil
}

// params returns every trainable layer exactly once, even when the
// encoder is shared between fidelity branches.
func (m *Model) params() []*linear {
	layers := m.encHF.layers()
	if m.encLF != nil && m.encLF != m.encHF {
		layers = append(layers, m.encLF.layers()...)
	}
	layers = append(layers, m.headHF.layers()...)
	if m.headLF != nil {
		layers = append(layers, m.headLF.layers()...)
	}
	return layers
}

// batchCache holds one forward pass over a batch for backpropagation.
type batchCache struct {
	encHF *encoderCache
	encLF *encoderCache // nil unless multi-fidelity; equals encHF when shared

	headHF []*ffnCache
	headLF []*ffnCache
}

// forwardBatch runs the model over a collated batch. features carries the
// extra per-molecule inputs for delta learning and may be nil otherwise.
func (m *Model) forwardBatch(batch *datasets.BatchGraph, features [][]float64) ([][]float64, *batchCache, error) {
	n := len(batch.AScope)
	preds := make([][]float64, n)
	c := &batchCache{headHF: make([]*ffnCache, n)}

	encHF, err := m.encHF.forward(batch)
	if err != nil {
		return nil, nil, err
	}
	c.encHF = encHF

	switch m.Type {
	case SingleFidelity, MultiTarget:
		for i := 0; i < n; i++ {
			out, hc := m.headHF.forward(encHF.mols[i])
			preds[i] = out
			c.headHF[i] = hc
		}

	case MultiFidelity, MultiFidelityWeightShared:
		encLF := encHF
		if m.encLF != m.encHF {
			encLF, err = m.encLF.forward(batch)
			if err != nil {
				return nil, nil, err
			}
		}
		c.encLF = encLF
		c.headLF = make([]*ffnCache, n)
		for i := 0; i < n; i++ {
			lfOut, lc := m.headLF.forward(encLF.mols[i])
			c.headLF[i] = lc

			hfIn := make([]float64, 0, len(encHF.mols[i])+1)
			hfIn = append(hfIn, encHF.mols[i]...)
			hfIn = append(hfIn, lfOut[0])
			hfOut, hc := m.headHF.forward(hfIn)
			c.headHF[i] = hc

			preds[i] = []float64{lfOut[0], hfOut[0]}
		}

	case DeltaML:
		for i := 0; i < n; i++ {
			if len(features[i]) != m.featDim {
				return nil, nil, fmt.Errorf("example %d has %d extra features, model expects %d",
					i, len(features[i]), m.featDim)
			}
			in := make([]float64, 0, len(encHF.mols[i])+m.featDim)
			in = append(in, encHF.mols[i]...)
			in = append(in, features[i]...)
			out, hc := m.headHF.forward(in)
			preds[i] = out
			c.headHF[i] = hc
		}

	default:
		return nil, nil, fmt.Errorf("unknown model type %q", m.Type)
	}
	return preds, c, nil
}

// backwardBatch accumulates parameter gradients from per-task prediction
// gradients.
func (m *Model) backwardBatch(c *batchCache, dPreds [][]float64) {
	n := len(dPreds)
	hidden := m.Config.Hidden
	dMolsHF := make([][]float64, n)

	switch m.Type {
	case SingleFidelity, MultiTarget:
		for i := 0; i < n; i++ {
			dMolsHF[i] = m.headHF.backward(c.headHF[i], dPreds[i])
		}
		m.encHF.backward(c.encHF, dMolsHF)

	case MultiFidelity, MultiFidelityWeightShared:
		dMolsLF := make([][]float64, n)
		for i := 0; i < n; i++ {
			dHFin := m.headHF.backward(c.headHF[i], []float64{dPreds[i][1]})
			dMolsHF[i] = dHFin[:hidden]
			// the low fidelity head sees its own loss plus the gradient
			// flowing back through the high fidelity head's extra input
			dLF := dPreds[i][0] + dHFin[hidden]
			dMolsLF[i] = m.headLF.backward(c.headLF[i], []float64{dLF})
		}
		if m.encLF == m.encHF {
			for i := 0; i < n; i++ {
				for j := range dMolsHF[i] {
					dMolsHF[i][j] += dMolsLF[i][j]
				}
			}
			m.encHF.backward(c.encHF, dMolsHF)
		} else {
			m.encHF.backward(c.encHF, dMolsHF)
			m.encLF.backward(c.encLF, dMolsLF)
		}

	case DeltaML:
		for i := 0; i < n; i++ {
			dIn := m.headHF.backward(c.headHF[i], dPreds[i])
			dMolsHF[i] = dIn[:hidden]
		}
		m.encHF.backward(c.encHF, dMolsHF)
	}
}

func (m *Model) zeroGrad() {
	for _, l := range m.params() {
		l.zeroGrad()
	}
}

// Predict runs a forward pass over the whole dataset in batches and
// returns one prediction row per datapoint.
func (m *Model) Predict(ds *datasets.MoleculeDataset) ([][]float64, error) {
	n := ds.Len()
	out := make([][]float64, 0, n)
	batchSize := m.Config.BatchSize
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		batch, _, features, err := ds.Batch(indices)
		if err != nil {
			return nil, err
		}
		preds, _, err := m.forwardBatch(batch, features)
		if err != nil {
			return nil, err
		}
		out = append(out, preds...)
	}
	return out, nil
}
