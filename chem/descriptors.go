package chem

// atomicWeight covers the elements that appear in typical organic property
// datasets. Unknown elements contribute zero weight.
var atomicWeight = map[string]float64{
	"H": 1.008, "B": 10.811, "C": 12.011, "N": 14.007, "O": 15.999,
	"F": 18.998, "Si": 28.086, "P": 30.974, "S": 32.065, "Cl": 35.453,
	"Se": 78.971, "Br": 79.904, "I": 126.904,
}

var halogens = map[string]bool{"F": true, "Cl": true, "Br": true, "I": true}

// MolWt returns the molecular weight, including implicit hydrogens.
func (m *Mol) MolWt() float64 {
	w := 0.0
	for i, a := range m.Atoms {
		w += atomicWeight[a.Symbol]
		w += atomicWeight["H"] * float64(m.Hydrogens(i))
	}
	return w
}

// HeavyAtomCount returns the number of non-hydrogen atoms.
func (m *Mol) HeavyAtomCount() int { return len(m.Atoms) }

// HeteroatomCount returns the number of heavy atoms that are not carbon.
func (m *Mol) HeteroatomCount() int {
	n := 0
	for _, a := range m.Atoms {
		if a.Symbol != "C" {
			n++
		}
	}
	return n
}

// HalogenCount returns the number of F, Cl, Br and I atoms.
func (m *Mol) HalogenCount() int {
	n := 0
	for _, a := range m.Atoms {
		if halogens[a.Symbol] {
			n++
		}
	}
	return n
}

// AromaticAtomCount returns the number of atoms flagged aromatic.
func (m *Mol) AromaticAtomCount() int {
	n := 0
	for _, a := range m.Atoms {
		if a.Aromatic {
			n++
		}
	}
	return n
}

// HBondDonorCount counts N and O atoms carrying at least one hydrogen.
func (m *Mol) HBondDonorCount() int {
	n := 0
	for i, a := range m.Atoms {
		if (a.Symbol == "N" || a.Symbol == "O") && m.Hydrogens(i) > 0 {
			n++
		}
	}
	return n
}

// HBondAcceptorCount counts N and O atoms.
func (m *Mol) HBondAcceptorCount() int {
	n := 0
	for _, a := range m.Atoms {
		if a.Symbol == "N" || a.Symbol == "O" {
			n++
		}
	}
	return n
}

// DescriptorNames lists the structural descriptors computed by Descriptors,
// in order.
var DescriptorNames = []string{
	"molwt",
	"heavy_atoms",
	"rings",
	"heteroatoms",
	"halogens",
	"aromatic_atoms",
	"hbond_donors",
	"hbond_acceptors",
}

// Descriptors returns the descriptor vector for the molecule, aligned with
// DescriptorNames.
func (m *Mol) Descriptors() []float64 {
	return []float64{
		m.MolWt(),
		float64(m.HeavyAtomCount()),
		float64(m.RingCount()),
		float64(m.HeteroatomCount()),
		float64(m.HalogenCount()),
		float64(m.AromaticAtomCount()),
		float64(m.HBondDonorCount()),
		float64(m.HBondAcceptorCount()),
	}
}
