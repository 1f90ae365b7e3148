package datasets

import (
	"fmt"
)

// Datapoint is a single molecule with its regression targets. A NaN target
// means the molecule carries no label at that fidelity. Features holds
// optional extra per-molecule inputs appended to the learned molecule
// representation (the delta-learning oracle values).
type Datapoint struct {
	Smiles   string
	Targets  []float64
	Features []float64
}

// MoleculeDataset holds datapoints together with their featurized graphs.
type MoleculeDataset struct {
	points []Datapoint
	graphs []*MolGraph
	f      *Featurizer
}

// NewMoleculeDataset featurizes every datapoint's SMILES. Parsing failures
// abort with the offending molecule named.
func NewMoleculeDataset(points []Datapoint, f *Featurizer) (*MoleculeDataset, error) {
	if f == nil {
		f = NewFeaturizer()
	}
	graphs, err := BuildGraphs(points, f, 0)
	if err != nil {
		return nil, err
	}
	return &MoleculeDataset{points: points, graphs: graphs, f: f}, nil
}

// NewMoleculeDatasetWithGraphs builds a dataset from datapoints and
// already-featurized graphs (e.g. loaded from a graph cache).
func NewMoleculeDatasetWithGraphs(points []Datapoint, graphs []*MolGraph, f *Featurizer) (*MoleculeDataset, error) {
	if len(points) != len(graphs) {
		return nil, fmt.Errorf("got %d datapoints but %d graphs", len(points), len(graphs))
	}
	if f == nil {
		f = NewFeaturizer()
	}
	return &MoleculeDataset{points: points, graphs: graphs, f: f}, nil
}

// Len returns the number of datapoints.
func (d *MoleculeDataset) Len() int { return len(d.points) }

// Point returns the datapoint at index i.
func (d *MoleculeDataset) Point(i int) Datapoint { return d.points[i] }

// Smiles returns the SMILES keys in dataset order.
func (d *MoleculeDataset) Smiles() []string {
	out := make([]string, len(d.points))
	for i, p := range d.points {
		out[i] = p.Smiles
	}
	return out
}

// Targets returns a copy of the target matrix.
func (d *MoleculeDataset) Targets() [][]float64 {
	out := make([][]float64, len(d.points))
	for i, p := range d.points {
		row := make([]float64, len(p.Targets))
		copy(row, p.Targets)
		out[i] = row
	}
	return out
}

// FeatureDim returns the width of the extra feature vectors (0 when none).
func (d *MoleculeDataset) FeatureDim() int {
	if len(d.points) == 0 {
		return 0
	}
	return len(d.points[0].Features)
}

// Featurizer returns the featurizer used to build the graphs.
func (d *MoleculeDataset) Featurizer() *Featurizer { return d.f }

// NormalizeTargets standardizes targets in place. When scaler is nil a new
// scaler is fitted on this dataset's targets. The scaler actually applied
// is returned, so a training scaler can be reused for validation data.
func (d *MoleculeDataset) NormalizeTargets(scaler *Scaler) (*Scaler, error) {
	if scaler == nil {
		var err error
		scaler, err = FitScaler(d.Targets())
		if err != nil {
			return nil, err
		}
	}
	for i := range d.points {
		row := [][]float64{d.points[i].Targets}
		scaler.Transform(row)
	}
	return scaler, nil
}

// Batch collates the graphs at the given indices and returns them with the
// matching target rows and extra feature rows.
func (d *MoleculeDataset) Batch(indices []int) (*BatchGraph, [][]float64, [][]float64, error) {
	if len(indices) == 0 {
		return nil, nil, nil, fmt.Errorf("empty batch")
	}
	graphs := make([]*MolGraph, len(indices))
	targets := make([][]float64, len(indices))
	features := make([][]float64, len(indices))
	for pos, idx := range indices {
		if idx < 0 || idx >= len(d.points) {
			return nil, nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.points))
		}
		graphs[pos] = d.graphs[idx]
		targets[pos] = d.points[idx].Targets
		features[pos] = d.points[idx].Features
	}
	batch, err := CollateGraphs(graphs)
	if err != nil {
		return nil, nil, nil, err
	}
	return batch, targets, features, nil
}
