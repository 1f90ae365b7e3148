package datasets

import "fmt"

// BatchGraph flattens a set of MolGraphs into one disconnected graph. Atom
// and bond indices are offset into the flattened arrays, and index 0 of
// every array is a zero-padding entry so that padded adjacency lookups
// return zeros.
type BatchGraph struct {
	NAtoms int // includes the padding atom at index 0
	NBonds int // includes the padding bond at index 0

	AtomFeatures [][]float64
	BondFeatures [][]float64

	// A2B is padded to MaxDegree entries per atom with zeros.
	A2B    [][]int
	B2A    []int
	B2RevB []int

	// AScope and BScope give the (start, count) ranges of each molecule's
	// atoms and directed bonds in the flattened arrays.
	AScope [][2]int
	BScope [][2]int

	MaxDegree int
	AtomDim   int
	BondDim   int
}

// CollateGraphs builds a BatchGraph from per-molecule graphs, offsetting
// atom and bond indices past the zero-padding entry at index 0.
func CollateGraphs(graphs []*MolGraph) (*BatchGraph, error) {
	if len(graphs) == 0 {
		return nil, fmt.Errorf("cannot collate an empty batch")
	}
	atomDim := len(graphs[0].AtomFeatures[0])
	bondDim := 0
	for _, g := range graphs {
		if g.NBonds > 0 {
			bondDim = len(g.BondFeatures[0])
			break
		}
	}

	b := &BatchGraph{
		NAtoms:  1,
		NBonds:  1,
		AtomDim: atomDim,
		BondDim: bondDim,
	}
	b.AtomFeatures = append(b.AtomFeatures, make([]float64, atomDim))
	b.BondFeatures = append(b.BondFeatures, make([]float64, bondDim))
	b.A2B = append(b.A2B, nil)
	b.B2A = append(b.B2A, 0)
	b.B2RevB = append(b.B2RevB, 0)

	for _, g := range graphs {
		if len(g.AtomFeatures) > 0 && len(g.AtomFeatures[0]) != atomDim {
			return nil, fmt.Errorf("inconsistent atom feature width: %d != %d", len(g.AtomFeatures[0]), atomDim)
		}
		b.AtomFeatures = append(b.AtomFeatures, g.AtomFeatures...)
		b.BondFeatures = append(b.BondFeatures, g.BondFeatures...)

		for a := 0; a < g.NAtoms; a++ {
			in := make([]int, len(g.A2B[a]))
			for i, bond := range g.A2B[a] {
				in[i] = bond + b.NBonds
			}
			b.A2B = append(b.A2B, in)
		}
		for bi := 0; bi < g.NBonds; bi++ {
			b.B2A = append(b.B2A, g.B2A[bi]+b.NAtoms)
			b.B2RevB = append(b.B2RevB, g.B2RevB[bi]+b.NBonds)
		}

		b.AScope = append(b.AScope, [2]int{b.NAtoms, g.NAtoms})
		b.BScope = append(b.BScope, [2]int{b.NBonds, g.NBonds})
		b.NAtoms += g.NAtoms
		b.NBonds += g.NBonds
	}

	// Pad neighbor lists to a rectangular layout. Minimum width 1 so that
	// single-atom molecules still index the padding bond.
	maxDeg := 1
	for _, in := range b.A2B {
		if len(in) > maxDeg {
			maxDeg = len(in)
		}
	}
	for a, in := range b.A2B {
		if len(in) < maxDeg {
			padded := make([]int, maxDeg)
			copy(padded, in)
			b.A2B[a] = padded
		}
	}
	b.MaxDegree = maxDeg
	return b, nil
}
