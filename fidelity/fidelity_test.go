package fidelity

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/mfchem/mfchem/datasets"
)

func testFrame(t *testing.T, rows []string) *datasets.Frame {
	t.Helper()
	content := "smiles,h298\n"
	for _, r := range rows {
		content += r + "\n"
	}
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test CSV: %v", err)
	}
	f, err := datasets.ReadFrame(path, "smiles")
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	return f
}

func TestPolyval(t *testing.T) {
	// 2x^2 + 3x + 1 at x=2
	if got := Polyval([]float64{2, 3, 1}, 2); got != 15 {
		t.Errorf("Polyval = %g, want 15", got)
	}
	if got := Polyval([]float64{5}, 100); got != 5 {
		t.Errorf("constant Polyval = %g, want 5", got)
	}
}

func TestSynthesizeLFConstantBias(t *testing.T) {
	f := testFrame(t, []string{"CCO,1.0", "CC,2.0", "C,3.0"})
	cfg := NoiseConfig{ConstantBias: 10}
	rng := rand.New(rand.NewSource(0))
	if err := SynthesizeLF(f, "h298", "h298_lf", cfg, rng); err != nil {
		t.Fatalf("SynthesizeLF failed: %v", err)
	}
	lf, err := f.Column("h298_lf")
	if err != nil {
		t.Fatalf("LF column missing: %v", err)
	}
	want := []float64{11, 12, 13}
	for i, w := range want {
		if math.Abs(lf[i]-w) > 1e-12 {
			t.Errorf("lf[%d] = %g, want %g", i, lf[i], w)
		}
	}
}

func TestSynthesizeLFGaussNoiseSeeded(t *testing.T) {
	rows := []string{"CCO,1.0", "CC,2.0", "C,3.0", "CCC,4.0"}
	cfg := NoiseConfig{GaussNoiseStd: 0.5}

	f1 := testFrame(t, rows)
	if err := SynthesizeLF(f1, "h298", "lf", cfg, rand.New(rand.NewSource(7))); err != nil {
		t.Fatalf("SynthesizeLF failed: %v", err)
	}
	f2 := testFrame(t, rows)
	if err := SynthesizeLF(f2, "h298", "lf", cfg, rand.New(rand.NewSource(7))); err != nil {
		t.Fatalf("SynthesizeLF failed: %v", err)
	}
	lf1, _ := f1.Column("lf")
	lf2, _ := f2.Column("lf")
	hf, _ := f1.Column("h298")
	var moved bool
	for i := range lf1 {
		if lf1[i] != lf2[i] {
			t.Errorf("same seed produced different noise at row %d", i)
		}
		if lf1[i] != hf[i] {
			moved = true
		}
	}
	if !moved {
		t.Error("noise left all values unchanged")
	}
}

func TestSynthesizeLFPolynomialBias(t *testing.T) {
	f := testFrame(t, []string{"CCO,1.0", "CC,-1.0", "C,0.0"})
	cfg := NoiseConfig{PolyBiasOrder: 2}
	if err := SynthesizeLF(f, "h298", "lf", cfg, rand.New(rand.NewSource(3))); err != nil {
		t.Fatalf("SynthesizeLF failed: %v", err)
	}
	lf, _ := f.Column("lf")
	hf, _ := f.Column("h298")
	// bias is a deterministic function of HF, so equal HF values would get
	// equal bias; distinct HF values here must stay distinct from HF
	var changed int
	for i := range lf {
		if lf[i] != hf[i] {
			changed++
		}
	}
	if changed == 0 {
		t.Error("polynomial bias left all values unchanged")
	}
}

func TestSynthesizeLFDescriptorBias(t *testing.T) {
	f := testFrame(t, []string{"CCO,1.0", "c1ccccc1,2.0", "CC(=O)O,3.0"})
	cfg := NoiseConfig{DescriptorBias: 0.1}
	if err := SynthesizeLF(f, "h298", "lf", cfg, rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("SynthesizeLF failed: %v", err)
	}
	lf, _ := f.Column("lf")
	// standardized descriptors have zero mean, so the total bias over the
	// dataset sums to ~0 while individual rows shift
	var sum float64
	hf, _ := f.Column("h298")
	for i := range lf {
		sum += lf[i] - hf[i]
	}
	if math.Abs(sum) > 1e-9 {
		t.Errorf("descriptor bias should be centered, total drift %g", sum)
	}
}

func TestSynthesizeLFStacking(t *testing.T) {
	rows := []string{"CCO,1.0", "CC,2.0"}
	f := testFrame(t, rows)
	cfg := NoiseConfig{ConstantBias: 5, GaussNoiseStd: 0.1}
	if err := SynthesizeLF(f, "h298", "lf", cfg, rand.New(rand.NewSource(9))); err != nil {
		t.Fatalf("SynthesizeLF failed: %v", err)
	}
	lf, _ := f.Column("lf")
	hf, _ := f.Column("h298")
	for i := range lf {
		if math.Abs(lf[i]-hf[i]-5) > 1 {
			t.Errorf("row %d: offset %g not near constant bias 5", i, lf[i]-hf[i])
		}
	}
}

func TestSplitPoolsSuperset(t *testing.T) {
	p, err := SplitPools(100, 4, true, rand.New(rand.NewSource(0)))
	if err != nil {
		t.Fatalf("SplitPools failed: %v", err)
	}
	if len(p.HF) != 25 {
		t.Errorf("HF pool size = %d, want 25", len(p.HF))
	}
	if len(p.LF) != 100 {
		t.Errorf("superset LF pool size = %d, want 100", len(p.LF))
	}
}

func TestSplitPoolsDisjoint(t *testing.T) {
	p, err := SplitPools(100, 4, false, rand.New(rand.NewSource(0)))
	if err != nil {
		t.Fatalf("SplitPools failed: %v", err)
	}
	if len(p.HF) != 20 {
		t.Errorf("HF pool size = %d, want 20", len(p.HF))
	}
	if len(p.LF) != 80 {
		t.Errorf("LF pool size = %d, want 80", len(p.LF))
	}
	seen := make(map[int]bool)
	for _, i := range p.HF {
		seen[i] = true
	}
	for _, i := range p.LF {
		if seen[i] {
			t.Fatalf("row %d appears in both pools", i)
		}
	}
}

func TestSplitPoolsErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	if _, err := SplitPools(0, 4, true, rng); err == nil {
		t.Error("zero rows should fail")
	}
	if _, err := SplitPools(10, 0, true, rng); err == nil {
		t.Error("zero ratio should fail")
	}
}

func TestMaskTargets(t *testing.T) {
	f := testFrame(t, []string{"CCO,1.0", "CC,2.0", "C,3.0", "CCC,4.0"})
	if err := f.CopyColumn("lf", "h298"); err != nil {
		t.Fatalf("CopyColumn failed: %v", err)
	}

	p := &Pools{HF: []int{0, 2}, LF: []int{1, 3}, Superset: false}
	if err := p.MaskTargets(f, "h298", "lf"); err != nil {
		t.Fatalf("MaskTargets failed: %v", err)
	}
	hf, _ := f.Column("h298")
	lf, _ := f.Column("lf")
	if !math.IsNaN(hf[1]) || !math.IsNaN(hf[3]) {
		t.Error("HF target should be NaN on LF-only rows")
	}
	if math.IsNaN(hf[0]) || math.IsNaN(hf[2]) {
		t.Error("HF target should survive on HF rows")
	}
	if !math.IsNaN(lf[0]) || !math.IsNaN(lf[2]) {
		t.Error("disjoint LF target should be NaN on HF rows")
	}
	if math.IsNaN(lf[1]) || math.IsNaN(lf[3]) {
		t.Error("LF target should survive on LF rows")
	}
}

func TestMaskTargetsSuperset(t *testing.T) {
	f := testFrame(t, []string{"CCO,1.0", "CC,2.0", "C,3.0", "CCC,4.0"})
	if err := f.CopyColumn("lf", "h298"); err != nil {
		t.Fatalf("CopyColumn failed: %v", err)
	}

	p := &Pools{HF: []int{0}, LF: []int{0, 1, 2, 3}, Superset: true}
	if err := p.MaskTargets(f, "h298", "lf"); err != nil {
		t.Fatalf("MaskTargets failed: %v", err)
	}
	hf, _ := f.Column("h298")
	lf, _ := f.Column("lf")
	for i := 1; i < 4; i++ {
		if !math.IsNaN(hf[i]) {
			t.Errorf("HF target row %d should be NaN", i)
		}
	}
	for i := 0; i < 4; i++ {
		if math.IsNaN(lf[i]) {
			t.Errorf("superset LF target row %d should survive", i)
		}
	}
}
