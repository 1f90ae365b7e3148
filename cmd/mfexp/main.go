// Command mfexp runs end-to-end multifidelity property prediction
// experiments: it synthesizes low fidelity labels from a high fidelity
// column, splits molecules into fidelity pools and train/val/test sets,
// trains a message passing network in one of several multifidelity
// configurations, and writes metrics, predictions and plots into a
// timestamped results directory.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot"

	"github.com/mfchem/mfchem/datasets"
	"github.com/mfchem/mfchem/fidelity"
	"github.com/mfchem/mfchem/mpnn"
	"github.com/mfchem/mfchem/splits"
)

// notImplementedTypes are accepted names that have no implementation yet.
var notImplementedTypes = map[string]bool{
	"multi_fidelity_weight_sharing_non_diff": true,
	"trad_delta_ml":                          true,
}

// runConfig collects every option of one experiment run. It is serialized
// to args.json inside the run directory.
type runConfig struct {
	ModelType      string  `json:"model_type"`
	DataFile       string  `json:"data_file"`
	SmilesCol      string  `json:"smiles_col"`
	HFCol          string  `json:"hf_col_name"`
	LFCol          string  `json:"lf_col_name"`
	ScaleData      bool    `json:"scale_data"`
	SaveTestPlot   bool    `json:"save_test_plot"`
	ExportTrainVal bool    `json:"export_train_and_val"`
	PolyBiasOrder  int     `json:"add_pn_bias_to_make_lf"`
	ConstantBias   float64 `json:"add_constant_bias_to_make_lf"`
	GaussNoiseStd  float64 `json:"add_gauss_noise_to_make_lf"`
	DescriptorBias float64 `json:"add_descriptor_bias_to_make_lf"`
	SplitType      string  `json:"split_type"`
	TestFrac       float64 `json:"test_frac"`
	ValFrac        float64 `json:"val_frac"`
	SizeRatio      int     `json:"lf_hf_size_ratio"`
	LFSuperset     bool    `json:"lf_superset_of_hf"`
	Seed           int64   `json:"seed"`
	ResultsDir     string  `json:"results_dir"`
	GraphCache     string  `json:"graph_cache"`

	Epochs       int     `json:"num_epochs"`
	BatchSize    int     `json:"batch_size"`
	Hidden       int     `json:"hidden_size"`
	Depth        int     `json:"depth"`
	FFNHidden    int     `json:"ffn_hidden_size"`
	FFNLayers    int     `json:"ffn_num_layers"`
	LearningRate float64 `json:"learning_rate"`
	Optimizer    string  `json:"optimizer"`
	Beta1        float64 `json:"adam_beta1"`
	Beta2        float64 `json:"adam_beta2"`
	Epsilon      float64 `json:"adam_eps"`
	ClipNorm     float64 `json:"clip_norm"`
}

func (c runConfig) validate() error {
	if c.DataFile == "" {
		return fmt.Errorf("-data-file is required")
	}
	if notImplementedTypes[c.ModelType] {
		return fmt.Errorf("model type %q is not implemented", c.ModelType)
	}
	known := false
	for _, t := range mpnn.ModelTypes {
		if t == c.ModelType {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown model type %q (supported: %v)", c.ModelType, mpnn.ModelTypes)
	}
	if c.ModelType == mpnn.SingleFidelity &&
		(c.PolyBiasOrder > 0 || c.GaussNoiseStd > 0 || c.DescriptorBias != 0 || c.ConstantBias != 0) {
		return fmt.Errorf("cannot synthesize low fidelity data when model type is single fidelity")
	}
	if c.SizeRatio < 1 {
		return fmt.Errorf("-lf-hf-size-ratio must be at least 1, got %d", c.SizeRatio)
	}
	return nil
}

func (c runConfig) noiseConfig() fidelity.NoiseConfig {
	return fidelity.NoiseConfig{
		PolyBiasOrder:  c.PolyBiasOrder,
		ConstantBias:   c.ConstantBias,
		GaussNoiseStd:  c.GaussNoiseStd,
		DescriptorBias: c.DescriptorBias,
	}
}

// noiseTitle summarizes the active noise sources for the LF/HF scatter.
func (c runConfig) noiseTitle() string {
	var parts []string
	if c.DescriptorBias != 0 {
		parts = append(parts, fmt.Sprintf("Descriptor (%g)", c.DescriptorBias))
	}
	if c.PolyBiasOrder > 0 {
		parts = append(parts, fmt.Sprintf("Poly (%d)", c.PolyBiasOrder))
	}
	if c.ConstantBias != 0 {
		parts = append(parts, fmt.Sprintf("Constant (%g)", c.ConstantBias))
	}
	if c.GaussNoiseStd > 0 {
		parts = append(parts, fmt.Sprintf("Gaussian (%g)", c.GaussNoiseStd))
	}
	return strings.Join(parts, "; ")
}

func (c runConfig) mpnnConfig() mpnn.Config {
	return mpnn.Config{
		Hidden:       c.Hidden,
		Depth:        c.Depth,
		FFNHidden:    c.FFNHidden,
		FFNLayers:    c.FFNLayers,
		LearningRate: c.LearningRate,
		Epochs:       c.Epochs,
		BatchSize:    c.BatchSize,
		Seed:         c.Seed,
		Optimizer:    c.Optimizer,
		Beta1:        c.Beta1,
		Beta2:        c.Beta2,
		Epsilon:      c.Epsilon,
		ClipNorm:     c.ClipNorm,
	}
}

func main() {
	var cfg runConfig
	flag.StringVar(&cfg.ModelType, "model-type", mpnn.SingleFidelity,
		fmt.Sprintf("model type, one of %v", mpnn.ModelTypes))
	flag.StringVar(&cfg.DataFile, "data-file", "", "input CSV with a SMILES column and the HF target column (required)")
	flag.StringVar(&cfg.SmilesCol, "smiles-col", "smiles", "name of the SMILES column")
	flag.StringVar(&cfg.HFCol, "hf-col", "h298", "name of the high fidelity target column")
	flag.StringVar(&cfg.LFCol, "lf-col", "h298_lf", "name of the synthesized low fidelity column")
	flag.BoolVar(&cfg.ScaleData, "scale-data", false, "standardize targets to zero mean and unit variance")
	flag.BoolVar(&cfg.SaveTestPlot, "save-test-plot", false, "save a parity plot of test set predictions")
	flag.BoolVar(&cfg.ExportTrainVal, "export-train-val", false, "export the train and validation sets as CSV")
	flag.IntVar(&cfg.PolyBiasOrder, "poly-bias-order", 0, "order of the random polynomial bias added to make LF data (0 = off)")
	flag.Float64Var(&cfg.ConstantBias, "constant-bias", 0, "constant bias added to make LF data")
	flag.Float64Var(&cfg.GaussNoiseStd, "gauss-noise", 0, "stddev of Gaussian noise added to make LF data")
	flag.Float64Var(&cfg.DescriptorBias, "descriptor-bias", 0, "magnitude of the descriptor-dependent bias added to make LF data")
	flag.StringVar(&cfg.SplitType, "split-type", "random", fmt.Sprintf("split strategy, one of %v", splits.Types))
	flag.Float64Var(&cfg.TestFrac, "test-frac", 0.1, "fraction of each fidelity pool held out for testing")
	flag.Float64Var(&cfg.ValFrac, "val-frac", 0.11, "fraction of the training set held out for validation")
	flag.IntVar(&cfg.SizeRatio, "lf-hf-size-ratio", 1, "LF:HF pool size ratio")
	flag.BoolVar(&cfg.LFSuperset, "lf-superset-of-hf", false, "make the LF pool a superset of the HF pool instead of disjoint")
	flag.Int64Var(&cfg.Seed, "seed", 0, "random seed (0 = time-based model init)")
	flag.StringVar(&cfg.ResultsDir, "results-dir", "results", "directory that collects timestamped run directories")
	flag.StringVar(&cfg.GraphCache, "graph-cache", "", "optional gob cache path for featurized molecule graphs")

	flag.IntVar(&cfg.Epochs, "epochs", 30, "number of training epochs")
	flag.IntVar(&cfg.BatchSize, "batch-size", 50, "training batch size")
	flag.IntVar(&cfg.Hidden, "hidden-size", 300, "bond message hidden size")
	flag.IntVar(&cfg.Depth, "depth", 3, "number of message passing steps")
	flag.IntVar(&cfg.FFNHidden, "ffn-hidden-size", 300, "readout head hidden size")
	flag.IntVar(&cfg.FFNLayers, "ffn-num-layers", 2, "readout head hidden layer count")
	flag.Float64Var(&cfg.LearningRate, "learning-rate", 0.001, "learning rate")
	flag.StringVar(&cfg.Optimizer, "optimizer", "adam", "optimizer to use for training: 'adam' or 'sgd'")
	flag.Float64Var(&cfg.Beta1, "adam-beta1", 0.9, "Adam beta1 hyperparameter")
	flag.Float64Var(&cfg.Beta2, "adam-beta2", 0.999, "Adam beta2 hyperparameter")
	flag.Float64Var(&cfg.Epsilon, "adam-eps", 1e-8, "Adam epsilon hyperparameter")
	flag.Float64Var(&cfg.ClipNorm, "clip-norm", 10, "per-layer gradient clipping norm")
	flag.Parse()

	if err := run(cfg); err != nil {
		log.Fatalf("mfexp: %v", err)
	}
}

func run(cfg runConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	runDir, err := makeRunDir(cfg.ResultsDir)
	if err != nil {
		return err
	}
	log.Printf("[Run] writing results to %s", runDir)
	if err := writeArgs(runDir, cfg); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	frame, err := datasets.ReadFrame(cfg.DataFile, cfg.SmilesCol)
	if err != nil {
		return err
	}
	if !frame.HasColumn(cfg.HFCol) {
		return fmt.Errorf("HF column %q not found in %s", cfg.HFCol, cfg.DataFile)
	}
	log.Printf("[Run] total dataset size: %d", frame.Len())

	single := cfg.ModelType == mpnn.SingleFidelity
	if !single {
		if err := fidelity.SynthesizeLF(frame, cfg.HFCol, cfg.LFCol, cfg.noiseConfig(), rng); err != nil {
			return err
		}
		if err := frame.WriteCSV(filepath.Join(runDir, "lf_hf_targets.csv")); err != nil {
			return err
		}
		hf, _ := frame.Column(cfg.HFCol)
		lf, _ := frame.Column(cfg.LFCol)
		if err := plotTargetScatter(filepath.Join(runDir, "lf_vs_hf_targets.png"), cfg.noiseTitle(), hf, lf); err != nil {
			return err
		}
	}

	// split into train/test, per fidelity pool for the multifidelity types
	var trainIdx, testIdx []int
	if single {
		trainIdx, testIdx, err = splits.Split(frame, cfg.SplitType, cfg.HFCol, cfg.TestFrac, rng)
		if err != nil {
			return err
		}
	} else {
		pools, perr := fidelity.SplitPools(frame.Len(), cfg.SizeRatio, cfg.LFSuperset, rng)
		if perr != nil {
			return perr
		}
		hfTrain, hfTest, herr := splitPool(frame, pools.HF, cfg, rng)
		if herr != nil {
			return herr
		}
		lfTrain, lfTest, lerr := splitPool(frame, pools.LF, cfg, rng)
		if lerr != nil {
			return lerr
		}
		log.Printf("[Run] HF pool %d (train/val %d, test %d), LF pool %d (train/val %d, test %d)",
			len(pools.HF), len(hfTrain), len(hfTest), len(pools.LF), len(lfTrain), len(lfTest))

		trainIdx = append(lfTrain, hfTrain...)
		testIdx = append(lfTest, hfTest...)

		// delta learning keeps both labels: the LF value rides along as an
		// oracle feature instead of a masked target
		if cfg.ModelType != mpnn.DeltaML {
			if err := pools.MaskTargets(frame, cfg.HFCol, cfg.LFCol); err != nil {
				return err
			}
		}
	}

	trainIdx, valIdx, err := splits.TrainValSplit(trainIdx, cfg.ValFrac, rng)
	if err != nil {
		return err
	}

	f := datasets.NewFeaturizer()
	graphs, err := loadOrBuildGraphs(cfg.GraphCache, frame, f)
	if err != nil {
		return err
	}

	trainDset, err := buildDataset(frame, graphs, f, trainIdx, cfg)
	if err != nil {
		return err
	}
	valDset, err := buildDataset(frame, graphs, f, valIdx, cfg)
	if err != nil {
		return err
	}
	testDset, err := buildDataset(frame, graphs, f, testIdx, cfg)
	if err != nil {
		return err
	}
	log.Printf("[Run] train %d, val %d, test %d", trainDset.Len(), valDset.Len(), testDset.Len())

	var trainScaler, testScaler *datasets.Scaler
	if cfg.ScaleData {
		trainScaler, err = trainDset.NormalizeTargets(nil)
		if err != nil {
			return err
		}
		if _, err := valDset.NormalizeTargets(trainScaler); err != nil {
			return err
		}
		// the test set gets its own scaler so metrics come out in the
		// original units after inverse transforming
		testScaler, err = testDset.NormalizeTargets(nil)
		if err != nil {
			return err
		}
	}

	featDim := 0
	if cfg.ModelType == mpnn.DeltaML {
		featDim = 1
	}
	model, err := mpnn.NewModel(cfg.ModelType, f.AtomDim(), f.BondDim(), featDim, cfg.mpnnConfig())
	if err != nil {
		return err
	}
	if err := model.Train(trainDset, valDset); err != nil {
		return err
	}

	preds, err := model.Predict(testDset)
	if err != nil {
		return err
	}
	targets := testDset.Targets()
	if cfg.ScaleData {
		testScaler.InverseTransform(preds)
		testScaler.InverseTransform(targets)
	}

	if err := reportTest(runDir, cfg, model, testDset.Smiles(), preds, targets); err != nil {
		return err
	}

	if cfg.ExportTrainVal {
		if err := exportSet(filepath.Join(runDir, "mf_train.csv"), cfg, model.NTasks, trainDset, trainScaler); err != nil {
			return err
		}
		if err := exportSet(filepath.Join(runDir, "mf_val.csv"), cfg, model.NTasks, valDset, trainScaler); err != nil {
			return err
		}
	}
	return nil
}

// splitPool applies the configured split strategy inside one fidelity pool
// and maps the pool-local indices back to the full frame.
func splitPool(frame *datasets.Frame, pool []int, cfg runConfig, rng *rand.Rand) (train, test []int, err error) {
	sub, err := frame.Select(pool)
	if err != nil {
		return nil, nil, err
	}
	tr, te, err := splits.Split(sub, cfg.SplitType, cfg.HFCol, cfg.TestFrac, rng)
	if err != nil {
		return nil, nil, err
	}
	train = make([]int, len(tr))
	for i, v := range tr {
		train[i] = pool[v]
	}
	test = make([]int, len(te))
	for i, v := range te {
		test[i] = pool[v]
	}
	return train, test, nil
}

// buildDataset assembles datapoints for the given frame rows, reusing the
// already featurized graphs. Target layout depends on the model type: the
// multifidelity types carry [LF, HF], delta learning carries [HF] with the
// LF oracle as an extra feature, single fidelity carries [HF].
func buildDataset(frame *datasets.Frame, graphs []*datasets.MolGraph, f *datasets.Featurizer, indices []int, cfg runConfig) (*datasets.MoleculeDataset, error) {
	hf, err := frame.Column(cfg.HFCol)
	if err != nil {
		return nil, err
	}
	var lf []float64
	if cfg.ModelType != mpnn.SingleFidelity {
		lf, err = frame.Column(cfg.LFCol)
		if err != nil {
			return nil, err
		}
	}

	points := make([]datasets.Datapoint, len(indices))
	gs := make([]*datasets.MolGraph, len(indices))
	for pos, idx := range indices {
		gs[pos] = graphs[idx]
		p := datasets.Datapoint{Smiles: frame.Smiles[idx]}
		switch cfg.ModelType {
		case mpnn.SingleFidelity:
			p.Targets = []float64{hf[idx]}
		case mpnn.DeltaML:
			p.Targets = []float64{hf[idx]}
			p.Features = []float64{lf[idx]}
		default:
			p.Targets = []float64{lf[idx], hf[idx]}
		}
		points[pos] = p
	}
	return datasets.NewMoleculeDatasetWithGraphs(points, gs, f)
}

// loadOrBuildGraphs featurizes the whole frame once, going through the gob
// cache when a path is configured.
func loadOrBuildGraphs(cachePath string, frame *datasets.Frame, f *datasets.Featurizer) ([]*datasets.MolGraph, error) {
	if cachePath != "" {
		if graphs, err := datasets.LoadGraphCache(cachePath, frame.Smiles, f); err == nil {
			log.Printf("[Run] loaded %d featurized graphs from %s", len(graphs), cachePath)
			return graphs, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Run] graph cache unavailable (%v), rebuilding", err)
		}
	}
	points := make([]datasets.Datapoint, frame.Len())
	for i, s := range frame.Smiles {
		points[i] = datasets.Datapoint{Smiles: s}
	}
	graphs, err := datasets.BuildGraphs(points, f, 0)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := datasets.SaveGraphCache(cachePath, frame.Smiles, graphs, f); err != nil {
			log.Printf("[Run] failed to save graph cache: %v", err)
		}
	}
	return graphs, nil
}

// reportTest writes test_metrics.csv, mf_test_preds.csv and, when enabled,
// the parity plot.
func reportTest(runDir string, cfg runConfig, model *mpnn.Model, smiles []string, preds, targets [][]float64) error {
	if model.NTasks == 1 {
		hfM, err := mpnn.Evaluate(mpnn.Column(preds, 0), mpnn.Column(targets, 0))
		if err != nil {
			return err
		}
		log.Printf("[Test] HF: MAE %.6f, RMSE %.6f, R2 %.6f", hfM.MAE, hfM.RMSE, hfM.R2)
		if err := writeMetricsCSV(filepath.Join(runDir, "test_metrics.csv"), hfM, nil); err != nil {
			return err
		}
		if cfg.SaveTestPlot {
			panel, err := parityPanel("High Fidelity", mpnn.Column(targets, 0), mpnn.Column(preds, 0), hfM)
			if err != nil {
				return err
			}
			if err := saveParityPlot(filepath.Join(runDir, "mf_test_preds.png"), []*plot.Plot{panel}); err != nil {
				return err
			}
		}
		return writeTestPreds(filepath.Join(runDir, "mf_test_preds.csv"), cfg, 1, smiles, preds, targets)
	}

	lfM, err := mpnn.Evaluate(mpnn.Column(preds, 0), mpnn.Column(targets, 0))
	if err != nil {
		return err
	}
	hfM, err := mpnn.Evaluate(mpnn.Column(preds, 1), mpnn.Column(targets, 1))
	if err != nil {
		return err
	}
	log.Printf("[Test] HF: MAE %.6f, RMSE %.6f, R2 %.6f", hfM.MAE, hfM.RMSE, hfM.R2)
	log.Printf("[Test] LF: MAE %.6f, RMSE %.6f, R2 %.6f", lfM.MAE, lfM.RMSE, lfM.R2)
	if err := writeMetricsCSV(filepath.Join(runDir, "test_metrics.csv"), hfM, &lfM); err != nil {
		return err
	}
	if cfg.SaveTestPlot {
		hfPanel, err := parityPanel("High Fidelity", mpnn.Column(targets, 1), mpnn.Column(preds, 1), hfM)
		if err != nil {
			return err
		}
		lfPanel, err := parityPanel("Low Fidelity", mpnn.Column(targets, 0), mpnn.Column(preds, 0), lfM)
		if err != nil {
			return err
		}
		if err := saveParityPlot(filepath.Join(runDir, "mf_test_preds.png"), []*plot.Plot{hfPanel, lfPanel}); err != nil {
			return err
		}
	}
	return writeTestPreds(filepath.Join(runDir, "mf_test_preds.csv"), cfg, 2, smiles, preds, targets)
}

func makeRunDir(resultsDir string) (string, error) {
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return "", fmt.Errorf("create results dir %s: %w", resultsDir, err)
	}
	dir := filepath.Join(resultsDir, time.Now().Format("2006-01-02_15-04-05.000000"))
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", fmt.Errorf("create run dir %s: %w", dir, err)
	}
	return dir, nil
}

func writeArgs(runDir string, cfg runConfig) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, "args.json"), data, 0644)
}

// fmt6 renders a value with six decimals, or blank for NaN.
func fmt6(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeMetricsCSV(path string, hf mpnn.Metrics, lf *mpnn.Metrics) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"MAE_hf", "RMSE_hf", "R2_hf", "MAE_lf", "RMSE_lf", "R2_lf"}); err != nil {
		return err
	}
	row := []string{fmt6(hf.MAE), fmt6(hf.RMSE), fmt6(hf.R2), "", "", ""}
	if lf != nil {
		row[3], row[4], row[5] = fmt6(lf.MAE), fmt6(lf.RMSE), fmt6(lf.R2)
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func writeTestPreds(path string, cfg runConfig, nTasks int, smiles []string, preds, targets [][]float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{cfg.SmilesCol, cfg.HFCol, cfg.HFCol + "_preds"}
	if nTasks == 2 {
		header = append(header, cfg.LFCol, cfg.LFCol+"_preds")
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i := range smiles {
		hfIdx := 0
		if nTasks == 2 {
			hfIdx = 1
		}
		row := []string{smiles[i], fmt6(targets[i][hfIdx]), fmt6(preds[i][hfIdx])}
		if nTasks == 2 {
			row = append(row, fmt6(targets[i][0]), fmt6(preds[i][0]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// exportSet writes one dataset's SMILES and targets, undoing the training
// scaler when targets were standardized.
func exportSet(path string, cfg runConfig, nTasks int, ds *datasets.MoleculeDataset, scaler *datasets.Scaler) error {
	targets := ds.Targets()
	if scaler != nil {
		scaler.InverseTransform(targets)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{cfg.SmilesCol}
	if nTasks == 2 {
		header = append(header, cfg.LFCol)
	}
	header = append(header, cfg.HFCol)
	if err := w.Write(header); err != nil {
		return err
	}
	smiles := ds.Smiles()
	for i := range smiles {
		row := []string{smiles[i]}
		if nTasks == 2 {
			row = append(row, fmt6(targets[i][0]), fmt6(targets[i][1]))
		} else {
			row = append(row, fmt6(targets[i][0]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
