package mpnn

import (
	"math"
	"testing"

	"github.com/mfchem/mfchem/datasets"
)

func smallConfig() Config {
	return Config{
		Hidden:       8,
		Depth:        2,
		FFNHidden:    8,
		FFNLayers:    1,
		LearningRate: 0.01,
		Epochs:       40,
		BatchSize:    4,
		Seed:         42,
	}
}

func buildDataset(t *testing.T, points []datasets.Datapoint) *datasets.MoleculeDataset {
	t.Helper()
	ds, err := datasets.NewMoleculeDataset(points, nil)
	if err != nil {
		t.Fatalf("NewMoleculeDataset failed: %v", err)
	}
	return ds
}

func carbonCountData(t *testing.T) *datasets.MoleculeDataset {
	smiles := []string{"C", "CC", "CCC", "CCCC", "CCCCC", "CCO", "CCCO", "CCN"}
	points := make([]datasets.Datapoint, len(smiles))
	for i, s := range smiles {
		var heavy float64
		for _, ch := range s {
			if ch == 'C' || ch == 'O' || ch == 'N' {
				heavy++
			}
		}
		points[i] = datasets.Datapoint{Smiles: s, Targets: []float64{heavy / 5.0}}
	}
	return buildDataset(t, points)
}

func TestMaskedMSE(t *testing.T) {
	nan := math.NaN()
	preds := [][]float64{{1, 2}, {3, 4}}
	targets := [][]float64{{0, nan}, {3, 2}}
	loss, grad := maskedMSE(preds, targets)
	// labeled entries: (1-0)^2, (3-3)^2, (4-2)^2 over 3 entries
	want := (1.0 + 0.0 + 4.0) / 3.0
	if math.Abs(loss-want) > 1e-12 {
		t.Errorf("loss = %g, want %g", loss, want)
	}
	if grad[0][1] != 0 {
		t.Error("NaN target must produce a zero gradient")
	}
	if math.Abs(grad[1][1]-4.0/3.0) > 1e-12 {
		t.Errorf("grad[1][1] = %g, want %g", grad[1][1], 4.0/3.0)
	}
}

func TestMaskedMSEAllNaN(t *testing.T) {
	nan := math.NaN()
	loss, grad := maskedMSE([][]float64{{1}}, [][]float64{{nan}})
	if loss != 0 || grad[0][0] != 0 {
		t.Errorf("fully masked batch should produce zero loss and gradient, got %g %g", loss, grad[0][0])
	}
}

func TestEvaluate(t *testing.T) {
	preds := []float64{1, 2, 3}
	targets := []float64{1, 2, 3}
	m, err := Evaluate(preds, targets)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if m.MAE != 0 || m.RMSE != 0 || math.Abs(m.R2-1) > 1e-12 {
		t.Errorf("perfect predictions should score 0/0/1, got %+v", m)
	}

	m, err = Evaluate([]float64{2, 2, 5, 99}, []float64{1, 3, 6, math.NaN()})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if math.Abs(m.MAE-1) > 1e-12 {
		t.Errorf("MAE = %g, want 1", m.MAE)
	}
	if math.Abs(m.RMSE-1) > 1e-12 {
		t.Errorf("RMSE = %g, want 1", m.RMSE)
	}

	if _, err := Evaluate([]float64{1}, []float64{1, 2}); err == nil {
		t.Error("length mismatch should fail")
	}
	if _, err := Evaluate([]float64{1}, []float64{math.NaN()}); err == nil {
		t.Error("all-NaN targets should fail")
	}
}

func TestNewModelValidation(t *testing.T) {
	cfg := smallConfig()
	if _, err := NewModel("bogus", 27, 5, 0, cfg); err == nil {
		t.Error("unknown model type should fail")
	}
	if _, err := NewModel(DeltaML, 27, 5, 0, cfg); err == nil {
		t.Error("delta learning without features should fail")
	}
	if _, err := NewModel(SingleFidelity, 0, 5, 0, cfg); err == nil {
		t.Error("zero atom dim should fail")
	}

	m, err := NewModel(MultiTarget, 27, 5, 0, cfg)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	if m.NTasks != 2 {
		t.Errorf("multi-target NTasks = %d, want 2", m.NTasks)
	}
}

func TestWeightSharingUsesOneEncoder(t *testing.T) {
	cfg := smallConfig()
	shared, err := NewModel(MultiFidelityWeightShared, 27, 5, 0, cfg)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	if shared.encLF != shared.encHF {
		t.Error("weight sharing variant should reuse the encoder")
	}
	separate, err := NewModel(MultiFidelity, 27, 5, 0, cfg)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	if separate.encLF == separate.encHF {
		t.Error("plain multi-fidelity should train a separate low fidelity encoder")
	}
	if len(shared.params())+3 != len(separate.params()) {
		t.Errorf("separate encoder should add 3 layers: shared=%d separate=%d",
			len(shared.params()), len(separate.params()))
	}
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	ds := carbonCountData(t)
	f := ds.Featurizer()
	cfg := smallConfig()

	for _, modelType := range []string{SingleFidelity, MultiFidelity, MultiFidelityWeightShared} {
		t.Run(modelType, func(t *testing.T) {
			taskTargets := func(base []float64) []float64 {
				if modelType == SingleFidelity {
					return base[:1]
				}
				return base
			}
			points := make([]datasets.Datapoint, ds.Len())
			for i := 0; i < ds.Len(); i++ {
				p := ds.Point(i)
				points[i] = datasets.Datapoint{
					Smiles:  p.Smiles,
					Targets: taskTargets([]float64{p.Targets[0], p.Targets[0] * 2}),
				}
			}
			data := buildDataset(t, points)

			m, err := NewModel(modelType, f.AtomDim(), f.BondDim(), 0, cfg)
			if err != nil {
				t.Fatalf("NewModel failed: %v", err)
			}
			indices := []int{0, 1, 2, 3}
			batch, targets, features, err := data.Batch(indices)
			if err != nil {
				t.Fatalf("Batch failed: %v", err)
			}

			lossAt := func() float64 {
				preds, _, err := m.forwardBatch(batch, features)
				if err != nil {
					t.Fatalf("forward failed: %v", err)
				}
				loss, _ := maskedMSE(preds, targets)
				return loss
			}

			preds, cache, err := m.forwardBatch(batch, features)
			if err != nil {
				t.Fatalf("forward failed: %v", err)
			}
			_, dPreds := maskedMSE(preds, targets)
			m.zeroGrad()
			m.backwardBatch(cache, dPreds)

			const eps = 1e-6
			for li, layer := range m.params() {
				checks := [][2]int{{0, 0}, {0, 1}, {len(layer.W) - 1, len(layer.W[0]) - 1}}
				for _, c := range checks {
					j, i := c[0], c[1]
					orig := layer.W[j][i]
					layer.W[j][i] = orig + eps
					up := lossAt()
					layer.W[j][i] = orig - eps
					down := lossAt()
					layer.W[j][i] = orig

					numeric := (up - down) / (2 * eps)
					analytic := layer.dW[j][i]
					if math.Abs(numeric-analytic) > 1e-4*(1+math.Abs(numeric)) {
						t.Errorf("layer %d W[%d][%d]: analytic %g vs numeric %g", li, j, i, analytic, numeric)
					}
				}
				if layer.B != nil {
					orig := layer.B[0]
					layer.B[0] = orig + eps
					up := lossAt()
					layer.B[0] = orig - eps
					down := lossAt()
					layer.B[0] = orig
					numeric := (up - down) / (2 * eps)
					if math.Abs(numeric-layer.dB[0]) > 1e-4*(1+math.Abs(numeric)) {
						t.Errorf("layer %d B[0]: analytic %g vs numeric %g", li, layer.dB[0], numeric)
					}
				}
			}
		})
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	ds := carbonCountData(t)
	f := ds.Featurizer()
	m, err := NewModel(SingleFidelity, f.AtomDim(), f.BondDim(), 0, smallConfig())
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	before, err := m.Loss(ds)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if err := m.Train(ds, nil); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	after, err := m.Loss(ds)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if after >= before {
		t.Errorf("training did not reduce loss: before %g, after %g", before, after)
	}
}

func TestTrainMaskedMultiFidelity(t *testing.T) {
	// only half the rows carry a high fidelity label
	smiles := []string{"C", "CC", "CCC", "CCCC", "CCCCC", "CCO", "CCCO", "CCN"}
	points := make([]datasets.Datapoint, len(smiles))
	for i, s := range smiles {
		lf := float64(len(s)) / 5.0
		hf := lf + 0.1
		if i%2 == 1 {
			hf = math.NaN()
		}
		points[i] = datasets.Datapoint{Smiles: s, Targets: []float64{lf, hf}}
	}
	ds := buildDataset(t, points)
	f := ds.Featurizer()

	cfg := smallConfig()
	cfg.Epochs = 5
	m, err := NewModel(MultiFidelityWeightShared, f.AtomDim(), f.BondDim(), 0, cfg)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	if err := m.Train(ds, ds); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	preds, err := m.Predict(ds)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(preds) != ds.Len() || len(preds[0]) != 2 {
		t.Fatalf("prediction shape %dx%d, want %dx2", len(preds), len(preds[0]), ds.Len())
	}
	for i := range preds {
		for j := range preds[i] {
			if math.IsNaN(preds[i][j]) {
				t.Fatalf("prediction (%d,%d) is NaN", i, j)
			}
		}
	}
}

func TestDeltaLearningUsesOracleFeature(t *testing.T) {
	// HF target equals the oracle feature, so the model can solve the task
	// through the extra input alone
	smiles := []string{"C", "CC", "CCC", "CCCC", "CCO", "CCN", "CO", "CCCCC"}
	points := make([]datasets.Datapoint, len(smiles))
	for i, s := range smiles {
		oracle := float64(i%4) / 4.0
		points[i] = datasets.Datapoint{
			Smiles:   s,
			Targets:  []float64{oracle},
			Features: []float64{oracle},
		}
	}
	ds := buildDataset(t, points)
	f := ds.Featurizer()

	cfg := smallConfig()
	m, err := NewModel(DeltaML, f.AtomDim(), f.BondDim(), 1, cfg)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	before, err := m.Loss(ds)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if err := m.Train(ds, nil); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	after, err := m.Loss(ds)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if after >= before {
		t.Errorf("training did not reduce loss: before %g, after %g", before, after)
	}
}
