package datasets

import (
	"testing"
)

func featurize(t *testing.T, smi string) *MolGraph {
	t.Helper()
	g, err := NewFeaturizer().Featurize(smi)
	if err != nil {
		t.Fatalf("Featurize(%q) failed: %v", smi, err)
	}
	return g
}

func TestFeaturizeDirectedBonds(t *testing.T) {
	g := featurize(t, "CCO")
	if g.NAtoms != 3 {
		t.Fatalf("expected 3 atoms, got %d", g.NAtoms)
	}
	if g.NBonds != 4 {
		t.Fatalf("expected 4 directed bonds, got %d", g.NBonds)
	}
	for b := 0; b < g.NBonds; b++ {
		rev := g.B2RevB[b]
		if g.B2RevB[rev] != b {
			t.Errorf("bond %d: reverse of reverse is %d", b, g.B2RevB[rev])
		}
		// the reverse bond starts where this one points to
		if g.B2A[rev] == g.B2A[b] {
			t.Errorf("bond %d and its reverse share source atom %d", b, g.B2A[b])
		}
	}
	// middle atom receives one directed bond from each neighbor
	if len(g.A2B[1]) != 2 {
		t.Errorf("middle atom incoming bonds = %d, want 2", len(g.A2B[1]))
	}
}

func TestCollateGraphsOffsets(t *testing.T) {
	g1 := featurize(t, "CCO")      // 3 atoms, 4 directed bonds
	g2 := featurize(t, "C")        // 1 atom, 0 bonds
	g3 := featurize(t, "c1ccccc1") // 6 atoms, 12 directed bonds

	b, err := CollateGraphs([]*MolGraph{g1, g2, g3})
	if err != nil {
		t.Fatalf("CollateGraphs failed: %v", err)
	}

	if b.NAtoms != 1+3+1+6 {
		t.Errorf("NAtoms = %d, want 11", b.NAtoms)
	}
	if b.NBonds != 1+4+0+12 {
		t.Errorf("NBonds = %d, want 17", b.NBonds)
	}

	wantAScope := [][2]int{{1, 3}, {4, 1}, {5, 6}}
	for i, w := range wantAScope {
		if b.AScope[i] != w {
			t.Errorf("AScope[%d] = %v, want %v", i, b.AScope[i], w)
		}
	}
	wantBScope := [][2]int{{1, 4}, {5, 0}, {5, 12}}
	for i, w := range wantBScope {
		if b.BScope[i] != w {
			t.Errorf("BScope[%d] = %v, want %v", i, b.BScope[i], w)
		}
	}

	// padding entries at index 0
	for _, v := range b.AtomFeatures[0] {
		if v != 0 {
			t.Fatal("padding atom features must be zero")
		}
	}
	if b.B2A[0] != 0 || b.B2RevB[0] != 0 {
		t.Error("padding bond must map to index 0")
	}

	// all neighbor lists are rectangular and in range
	for a, in := range b.A2B {
		if len(in) != b.MaxDegree {
			t.Fatalf("A2B[%d] has width %d, want %d", a, len(in), b.MaxDegree)
		}
		for _, bond := range in {
			if bond < 0 || bond >= b.NBonds {
				t.Fatalf("A2B[%d] references bond %d out of range", a, bond)
			}
		}
	}

	// every real bond's source atom lies inside its molecule's atom scope,
	// and the reverse mapping survives offsetting
	for mi, bs := range b.BScope {
		as := b.AScope[mi]
		for bond := bs[0]; bond < bs[0]+bs[1]; bond++ {
			src := b.B2A[bond]
			if src < as[0] || src >= as[0]+as[1] {
				t.Errorf("bond %d source %d outside atom scope %v", bond, src, as)
			}
			rev := b.B2RevB[bond]
			if rev < bs[0] || rev >= bs[0]+bs[1] {
				t.Errorf("bond %d reverse %d outside bond scope %v", bond, rev, bs)
			}
			if b.B2RevB[rev] != bond {
				t.Errorf("bond %d: reverse of reverse is %d", bond, b.B2RevB[rev])
			}
		}
	}
}

func TestCollateGraphsSingleAtomOnly(t *testing.T) {
	// A batch of single heavy atoms has no bonds; the neighbor width must
	// still be at least 1 so padding lookups stay valid.
	b, err := CollateGraphs([]*MolGraph{featurize(t, "C"), featurize(t, "O")})
	if err != nil {
		t.Fatalf("CollateGraphs failed: %v", err)
	}
	if b.MaxDegree != 1 {
		t.Errorf("MaxDegree = %d, want 1", b.MaxDegree)
	}
	if b.NBonds != 1 {
		t.Errorf("NBonds = %d, want 1 (padding only)", b.NBonds)
	}
}

func TestCollateGraphsEmpty(t *testing.T) {
	if _, err := CollateGraphs(nil); err == nil {
		t.Fatal("empty collate should fail")
	}
}
