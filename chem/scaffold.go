package chem

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// ScaffoldKey returns a stable key identifying the molecule's ring-and-linker
// scaffold: terminal atoms are pruned away until only ring systems and the
// linkers between them remain, then the remaining subgraph is hashed with a
// few rounds of neighborhood refinement so that equal scaffolds map to equal
// keys regardless of atom ordering.
//
// Acyclic molecules have no scaffold and share the empty key.
func (m *Mol) ScaffoldKey() string {
	kept := make([]bool, len(m.Atoms))
	for i := range kept {
		kept[i] = true
	}
	degree := func(a int) int {
		d := 0
		for _, b := range m.adj[a] {
			if kept[m.Other(b, a)] {
				d++
			}
		}
		return d
	}

	// Iteratively strip terminal atoms. What survives is the Murcko-style
	// framework: rings plus linker chains.
	for {
		removed := false
		for a := range m.Atoms {
			if kept[a] && degree(a) <= 1 {
				// A lone surviving atom only happens for acyclic input.
				kept[a] = false
				removed = true
			}
		}
		if !removed {
			break
		}
	}

	var atoms []int
	for a, k := range kept {
		if k {
			atoms = append(atoms, a)
		}
	}
	if len(atoms) == 0 {
		return ""
	}

	// Initial labels: element, aromaticity, scaffold degree.
	labels := make(map[int]uint64, len(atoms))
	for _, a := range atoms {
		at := m.Atoms[a]
		labels[a] = hash64(fmt.Sprintf("%s|%t|%d", at.Symbol, at.Aromatic, degree(a)))
	}

	// Neighborhood refinement rounds.
	for round := 0; round < 4; round++ {
		next := make(map[int]uint64, len(atoms))
		for _, a := range atoms {
			var neigh []uint64
			for _, b := range m.adj[a] {
				u := m.Other(b, a)
				if !kept[u] {
					continue
				}
				order := uint64(m.Bonds[b].Order)
				if m.Bonds[b].Aromatic {
					order = 4
				}
				neigh = append(neigh, labels[u]*31+order)
			}
			sort.Slice(neigh, func(i, j int) bool { return neigh[i] < neigh[j] })
			h := fnv.New64a()
			writeUint64(h, labels[a])
			for _, v := range neigh {
				writeUint64(h, v)
			}
			next[a] = h.Sum64()
		}
		labels = next
	}

	final := make([]uint64, 0, len(atoms))
	for _, a := range atoms {
		final = append(final, labels[a])
	}
	sort.Slice(final, func(i, j int) bool { return final[i] < final[j] })
	h := fnv.New64a()
	for _, v := range final {
		writeUint64(h, v)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func hash64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	h.Write(buf[:])
}
