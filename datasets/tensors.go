package datasets

import (
	"fmt"
	"io"
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ToGomlxTensors converts the flattened batch feature matrices into gomlx
// tensors: atom features [NAtoms, AtomDim] and bond features
// [NBonds, BondDim], padding rows included.
func (b *BatchGraph) ToGomlxTensors() (atoms, bonds *tensors.Tensor, err error) {
	if b.NAtoms == 0 {
		return nil, nil, fmt.Errorf("empty batch graph")
	}
	atoms = tensors.FromAnyValue(b.AtomFeatures)
	bonds = tensors.FromAnyValue(b.BondFeatures)
	return atoms, bonds, nil
}

// Loader iterates a MoleculeDataset in fixed-size batches and exposes the
// gomlx train.Dataset yield shape. NaN targets are yielded as zeros next to
// an explicit {0,1} mask tensor, since tensor consumers cannot rely on NaN
// propagation for masking.
type Loader struct {
	DS        *MoleculeDataset
	BatchSize int

	cursor int
}

// NewLoader creates a loader over ds with the given batch size.
func NewLoader(ds *MoleculeDataset, batchSize int) (*Loader, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Loader{DS: ds, BatchSize: batchSize}, nil
}

// Name returns the name of the dataset.
func (l *Loader) Name() string { return "MoleculeDataset" }

// Yield returns the next batch as gomlx tensors: inputs are the atom and
// bond feature matrices, labels are the target matrix and its mask. It
// returns io.EOF once the dataset is exhausted; Restart begins a new epoch.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if l.cursor >= l.DS.Len() {
		return nil, nil, nil, io.EOF
	}
	end := l.cursor + l.BatchSize
	if end > l.DS.Len() {
		end = l.DS.Len()
	}
	indices := make([]int, 0, end-l.cursor)
	for i := l.cursor; i < end; i++ {
		indices = append(indices, i)
	}
	l.cursor = end

	batch, targets, _, err := l.DS.Batch(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	atomT, bondT, err := batch.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}

	values := make([][]float64, len(targets))
	mask := make([][]float64, len(targets))
	for i, row := range targets {
		values[i] = make([]float64, len(row))
		mask[i] = make([]float64, len(row))
		for j, v := range row {
			if !math.IsNaN(v) {
				values[i][j] = v
				mask[i][j] = 1
			}
		}
	}

	inputs = []*tensors.Tensor{atomT, bondT}
	labels = []*tensors.Tensor{tensors.FromAnyValue(values), tensors.FromAnyValue(mask)}
	return nil, inputs, labels, nil
}

// Restart resets the loader for a new epoch.
func (l *Loader) Restart() error {
	l.cursor = 0
	return nil
}
