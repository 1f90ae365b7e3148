package datasets

import (
	"fmt"

	"github.com/mfchem/mfchem/chem"
)

// featurizer element vocabulary; anything else falls into the final slot.
var featurizerElements = []string{"C", "N", "O", "S", "F", "Cl", "Br", "I", "P", "B", "Si", "Se"}

const (
	maxDegreeFeature = 5
	maxHFeature      = 4
)

// Featurizer turns parsed molecules into MolGraphs with fixed-width atom and
// bond feature vectors.
type Featurizer struct{}

// NewFeaturizer returns the default molecule featurizer.
func NewFeaturizer() *Featurizer { return &Featurizer{} }

// AtomDim is the atom feature vector width: element one-hot, degree one-hot,
// formal charge, aromatic flag, hydrogen-count one-hot, ring membership.
func (f *Featurizer) AtomDim() int {
	return len(featurizerElements) + 1 + (maxDegreeFeature + 1) + 1 + 1 + (maxHFeature + 1) + 1
}

// BondDim is the bond feature vector width: order one-hot, aromatic flag,
// ring membership.
func (f *Featurizer) BondDim() int { return 3 + 1 + 1 }

// MolGraph is a featurized molecule with chemprop-style directed bonds.
// Each undirected bond appears twice, once per direction. B2A maps a
// directed bond to its source atom, A2B lists the directed bonds whose
// destination is the atom, and B2RevB maps a directed bond to its reverse.
type MolGraph struct {
	NAtoms int
	NBonds int // directed bonds

	AtomFeatures [][]float64
	BondFeatures [][]float64

	A2B    [][]int
	B2A    []int
	B2RevB []int
}

// Featurize parses a SMILES string and builds its MolGraph.
func (f *Featurizer) Featurize(smiles string) (*MolGraph, error) {
	mol, err := chem.ParseSMILES(smiles)
	if err != nil {
		return nil, fmt.Errorf("featurize %q: %w", smiles, err)
	}
	return f.FeaturizeMol(mol), nil
}

// FeaturizeMol builds the MolGraph for an already-parsed molecule.
func (f *Featurizer) FeaturizeMol(mol *chem.Mol) *MolGraph {
	n := mol.NumAtoms()
	ringAtoms := mol.RingAtoms()
	ringBonds := mol.RingBonds()

	g := &MolGraph{
		NAtoms:       n,
		AtomFeatures: make([][]float64, n),
		A2B:          make([][]int, n),
	}
	for a := 0; a < n; a++ {
		g.AtomFeatures[a] = f.atomFeatures(mol, a, ringAtoms[a])
	}

	for bi, bond := range mol.Bonds {
		feats := f.bondFeatures(bond, ringBonds[bi])
		// forward: From -> To
		fwd := g.NBonds
		g.BondFeatures = append(g.BondFeatures, feats)
		g.B2A = append(g.B2A, bond.From)
		g.A2B[bond.To] = append(g.A2B[bond.To], fwd)
		// reverse: To -> From
		rev := fwd + 1
		g.BondFeatures = append(g.BondFeatures, feats)
		g.B2A = append(g.B2A, bond.To)
		g.A2B[bond.From] = append(g.A2B[bond.From], rev)

		g.B2RevB = append(g.B2RevB, rev, fwd)
		g.NBonds += 2
	}
	return g
}

func (f *Featurizer) atomFeatures(mol *chem.Mol, a int, inRing bool) []float64 {
	atom := mol.Atoms[a]
	feats := make([]float64, f.AtomDim())
	pos := 0

	// element one-hot with overflow slot
	hit := len(featurizerElements)
	for i, sym := range featurizerElements {
		if atom.Symbol == sym {
			hit = i
			break
		}
	}
	feats[pos+hit] = 1
	pos += len(featurizerElements) + 1

	// degree one-hot, clamped
	deg := mol.Degree(a)
	if deg > maxDegreeFeature {
		deg = maxDegreeFeature
	}
	feats[pos+deg] = 1
	pos += maxDegreeFeature + 1

	feats[pos] = float64(atom.Charge)
	pos++
	if atom.Aromatic {
		feats[pos] = 1
	}
	pos++

	h := mol.Hydrogens(a)
	if h > maxHFeature {
		h = maxHFeature
	}
	feats[pos+h] = 1
	pos += maxHFeature + 1

	if inRing {
		feats[pos] = 1
	}
	return feats
}

func (f *Featurizer) bondFeatures(bond chem.Bond, inRing bool) []float64 {
	feats := make([]float64, f.BondDim())
	order := bond.Order
	if order >= 1 && order <= 3 {
		feats[order-1] = 1
	}
	if bond.Aromatic {
		feats[3] = 1
	}
	if inRing {
		feats[4] = 1
	}
	return feats
}
