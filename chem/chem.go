package chem

// This package provides the minimal cheminformatics the experiment harness
// needs: parsing SMILES strings into molecular graphs, a handful of cheap
// structural descriptors, and scaffold keys for scaffold-grouped splits.
//
// It is deliberately small. Aromaticity is taken from the lowercase SMILES
// notation as written, implicit hydrogen counts use standard valences, and
// no canonicalization, sanitization or stereochemistry handling is done.
// Anything beyond what the featurizer, the descriptor bias and the split
// strategies consume belongs in a real cheminformatics toolkit.

// Atom is a heavy atom in a molecular graph.
type Atom struct {
	Symbol   string
	Aromatic bool
	Charge   int

	// ExplicitHs is the hydrogen count written in a bracket atom.
	// It is -1 for organic-subset atoms, whose hydrogens are implied by
	// valence.
	ExplicitHs int
}

// Bond is an undirected bond between two atoms.
type Bond struct {
	From, To int
	Order    int // 1, 2 or 3
	Aromatic bool
}

// Mol is a molecular graph. Atom and bond indices are stable for the
// lifetime of the Mol.
type Mol struct {
	Atoms []Atom
	Bonds []Bond

	// adj[a] lists the indices of bonds incident to atom a.
	adj [][]int
}

// NumAtoms returns the heavy atom count.
func (m *Mol) NumAtoms() int { return len(m.Atoms) }

// NumBonds returns the number of undirected bonds.
func (m *Mol) NumBonds() int { return len(m.Bonds) }

// BondsOf returns the indices of bonds incident to atom a.
func (m *Mol) BondsOf(a int) []int { return m.adj[a] }

// Other returns the atom at the far end of bond b from atom a.
func (m *Mol) Other(b, a int) int {
	bd := m.Bonds[b]
	if bd.From == a {
		return bd.To
	}
	return bd.From
}

// Degree returns the number of heavy-atom neighbors of atom a.
func (m *Mol) Degree(a int) int { return len(m.adj[a]) }

func (m *Mol) addBond(from, to, order int, aromatic bool) {
	m.Bonds = append(m.Bonds, Bond{From: from, To: to, Order: order, Aromatic: aromatic})
	b := len(m.Bonds) - 1
	m.adj[from] = append(m.adj[from], b)
	m.adj[to] = append(m.adj[to], b)
}

// defaultValence maps element symbols of the SMILES organic subset to the
// valence used when inferring implicit hydrogens.
var defaultValence = map[string]int{
	"B": 3, "C": 4, "N": 3, "O": 2, "P": 3, "S": 2,
	"F": 1, "Cl": 1, "Br": 1, "I": 1,
}

// Hydrogens returns the hydrogen count of atom a: the explicit count for
// bracket atoms, otherwise the standard-valence remainder. Aromatic bonds
// count 1.5 toward the used valence, rounded up over the atom.
func (m *Mol) Hydrogens(a int) int {
	at := m.Atoms[a]
	if at.ExplicitHs >= 0 {
		return at.ExplicitHs
	}
	val, ok := defaultValence[at.Symbol]
	if !ok {
		return 0
	}
	used := 0.0
	for _, b := range m.adj[a] {
		if m.Bonds[b].Aromatic {
			used += 1.5
		} else {
			used += float64(m.Bonds[b].Order)
		}
	}
	h := val - int(used+0.999999)
	if h < 0 {
		return 0
	}
	return h
}

// RingBonds reports, per bond, whether the bond lies on a cycle. A bond is
// in a ring exactly when it is not a bridge of the graph.
func (m *Mol) RingBonds() []bool {
	n := len(m.Atoms)
	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	inRing := make([]bool, len(m.Bonds))
	for i := range inRing {
		inRing[i] = true
	}
	timer := 0

	var dfs func(a, parentBond int)
	dfs = func(a, parentBond int) {
		disc[a] = timer
		low[a] = timer
		timer++
		for _, b := range m.adj[a] {
			if b == parentBond {
				continue
			}
			u := m.Other(b, a)
			if disc[u] == -1 {
				dfs(u, b)
				if low[u] < low[a] {
					low[a] = low[u]
				}
				if low[u] > disc[a] {
					inRing[b] = false // bridge
				}
			} else if disc[u] < low[a] {
				low[a] = disc[u]
			}
		}
	}
	for a := 0; a < n; a++ {
		if disc[a] == -1 {
			dfs(a, -1)
		}
	}
	return inRing
}

// RingAtoms reports, per atom, whether the atom belongs to a ring.
func (m *Mol) RingAtoms() []bool {
	ringBonds := m.RingBonds()
	out := make([]bool, len(m.Atoms))
	for b, in := range ringBonds {
		if in {
			out[m.Bonds[b].From] = true
			out[m.Bonds[b].To] = true
		}
	}
	return out
}

// RingCount returns the cycle rank of the graph (bonds - atoms + components).
func (m *Mol) RingCount() int {
	n := len(m.Atoms)
	seen := make([]bool, n)
	components := 0
	for start := 0; start < n; start++ {
		if seen[start] {
			continue
		}
		components++
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			a := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, b := range m.adj[a] {
				u := m.Other(b, a)
				if !seen[u] {
					seen[u] = true
					stack = append(stack, u)
				}
			}
		}
	}
	return len(m.Bonds) - n + components
}
