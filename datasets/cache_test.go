package datasets

import (
	"path/filepath"
	"testing"
)

func TestGraphCacheRoundTrip(t *testing.T) {
	smiles := []string{"CCO", "c1ccccc1", "CC(=O)O"}
	points := make([]Datapoint, len(smiles))
	for i, s := range smiles {
		points[i] = Datapoint{Smiles: s}
	}
	f := NewFeaturizer()
	graphs, err := BuildGraphs(points, f, 2)
	if err != nil {
		t.Fatalf("BuildGraphs failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "graphs.gob")
	if err := SaveGraphCache(path, smiles, graphs, f); err != nil {
		t.Fatalf("SaveGraphCache failed: %v", err)
	}
	loaded, err := LoadGraphCache(path, smiles, f)
	if err != nil {
		t.Fatalf("LoadGraphCache failed: %v", err)
	}
	if len(loaded) != len(graphs) {
		t.Fatalf("loaded %d graphs, want %d", len(loaded), len(graphs))
	}
	for i := range graphs {
		if loaded[i].NAtoms != graphs[i].NAtoms || loaded[i].NBonds != graphs[i].NBonds {
			t.Errorf("graph %d changed shape after round trip", i)
		}
		for a := range graphs[i].AtomFeatures {
			for j := range graphs[i].AtomFeatures[a] {
				if loaded[i].AtomFeatures[a][j] != graphs[i].AtomFeatures[a][j] {
					t.Fatalf("graph %d atom %d feature %d changed", i, a, j)
				}
			}
		}
	}
}

func TestGraphCacheRejectsDifferentMolecules(t *testing.T) {
	smiles := []string{"CCO", "CCC"}
	points := []Datapoint{{Smiles: "CCO"}, {Smiles: "CCC"}}
	f := NewFeaturizer()
	graphs, err := BuildGraphs(points, f, 1)
	if err != nil {
		t.Fatalf("BuildGraphs failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "graphs.gob")
	if err := SaveGraphCache(path, smiles, graphs, f); err != nil {
		t.Fatalf("SaveGraphCache failed: %v", err)
	}

	if _, err := LoadGraphCache(path, []string{"CCO", "CCN"}, f); err == nil {
		t.Error("cache built from different molecules should be rejected")
	}
	if _, err := LoadGraphCache(path, []string{"CCO"}, f); err == nil {
		t.Error("cache with a different row count should be rejected")
	}
	if _, err := LoadGraphCache(filepath.Join(t.TempDir(), "missing.gob"), smiles, f); err == nil {
		t.Error("missing cache file should be an error")
	}
}

func TestBuildGraphsReportsBadSmiles(t *testing.T) {
	points := []Datapoint{{Smiles: "CCO"}, {Smiles: "C1CC"}}
	if _, err := BuildGraphs(points, NewFeaturizer(), 2); err == nil {
		t.Fatal("unclosed ring should fail featurization")
	}
}
