// Package fidelity synthesizes low fidelity labels from a high fidelity
// column and partitions molecules into high and low fidelity pools.
package fidelity

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/mfchem/mfchem/chem"
	"github.com/mfchem/mfchem/datasets"
)

// NoiseConfig controls how a low fidelity column is synthesized from the
// high fidelity one. All transforms stack in the order they are declared
// here, each applied on top of the previous result.
type NoiseConfig struct {
	// PolyBiasOrder adds a random polynomial of the HF value. 0 disables.
	PolyBiasOrder int

	// ConstantBias adds a fixed offset. 0 disables.
	ConstantBias float64

	// GaussNoiseStd adds zero-mean Gaussian noise. 0 disables.
	GaussNoiseStd float64

	// DescriptorBias adds a random linear combination of standardized
	// molecular descriptors, scaled by this magnitude. 0 disables.
	DescriptorBias float64
}

// Enabled reports whether any transform is active.
func (c NoiseConfig) Enabled() bool {
	return c.PolyBiasOrder > 0 || c.ConstantBias != 0 || c.GaussNoiseStd > 0 || c.DescriptorBias != 0
}

// Polyval evaluates a polynomial with coefficients ordered from the highest
// power down to the constant term.
func Polyval(coeffs []float64, x float64) float64 {
	var y float64
	for _, c := range coeffs {
		y = y*x + c
	}
	return y
}

// SynthesizeLF overwrites lfCol with a copy of hfCol and applies the
// configured transforms on top, so multiple noise sources stack.
func SynthesizeLF(frame *datasets.Frame, hfCol, lfCol string, cfg NoiseConfig, rng *rand.Rand) error {
	if err := frame.CopyColumn(lfCol, hfCol); err != nil {
		return err
	}
	if cfg.PolyBiasOrder > 0 {
		if err := AddPolynomialBias(frame, hfCol, lfCol, cfg.PolyBiasOrder, rng); err != nil {
			return err
		}
	}
	if cfg.ConstantBias != 0 {
		if err := AddConstantBias(frame, lfCol, cfg.ConstantBias); err != nil {
			return err
		}
	}
	if cfg.GaussNoiseStd > 0 {
		if err := AddGaussNoise(frame, lfCol, cfg.GaussNoiseStd, rng); err != nil {
			return err
		}
	}
	if cfg.DescriptorBias != 0 {
		if err := AddDescriptorBias(frame, lfCol, cfg.DescriptorBias, rng); err != nil {
			return err
		}
	}
	return nil
}

// AddPolynomialBias draws order+1 coefficients uniformly from [-1, 1) and
// adds the polynomial evaluated at each HF value to the LF column.
func AddPolynomialBias(frame *datasets.Frame, hfCol, lfCol string, order int, rng *rand.Rand) error {
	if order <= 0 {
		return fmt.Errorf("polynomial bias order must be positive, got %d", order)
	}
	hf, err := frame.Column(hfCol)
	if err != nil {
		return err
	}
	lf, err := frame.Column(lfCol)
	if err != nil {
		return err
	}
	coeffs := make([]float64, order+1)
	for i := range coeffs {
		coeffs[i] = rng.Float64()*2 - 1
	}
	for i := range lf {
		lf[i] += Polyval(coeffs, hf[i])
	}
	return nil
}

// AddConstantBias adds a fixed offset to every LF value.
func AddConstantBias(frame *datasets.Frame, lfCol string, bias float64) error {
	lf, err := frame.Column(lfCol)
	if err != nil {
		return err
	}
	for i := range lf {
		lf[i] += bias
	}
	return nil
}

// AddGaussNoise adds zero-mean Gaussian noise with the given standard
// deviation to every LF value.
func AddGaussNoise(frame *datasets.Frame, lfCol string, std float64, rng *rand.Rand) error {
	if std <= 0 {
		return fmt.Errorf("noise standard deviation must be positive, got %g", std)
	}
	lf, err := frame.Column(lfCol)
	if err != nil {
		return err
	}
	for i := range lf {
		lf[i] += rng.NormFloat64() * std
	}
	return nil
}

// AddDescriptorBias adds a structure-dependent bias: each molecular
// descriptor is standardized over the dataset, weighted by a random
// coefficient in [-magnitude, magnitude), and the weighted sum is added to
// the LF value of every molecule.
func AddDescriptorBias(frame *datasets.Frame, lfCol string, magnitude float64, rng *rand.Rand) error {
	lf, err := frame.Column(lfCol)
	if err != nil {
		return err
	}
	n := frame.Len()
	nDesc := len(chem.DescriptorNames)

	weights := make([]float64, nDesc)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * magnitude
	}

	// descriptor matrix, column-major so each descriptor can be standardized
	cols := make([][]float64, nDesc)
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	for i, smi := range frame.Smiles {
		mol, err := chem.ParseSMILES(smi)
		if err != nil {
			return fmt.Errorf("descriptor bias for row %d (%q): %w", i, smi, err)
		}
		d := mol.Descriptors()
		for j := range cols {
			cols[j][i] = d[j]
		}
	}
	for j := range cols {
		mean := stat.Mean(cols[j], nil)
		std := stat.StdDev(cols[j], nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i := range cols[j] {
			cols[j][i] = (cols[j][i] - mean) / std
		}
	}

	for i := range lf {
		var bias float64
		for j := range cols {
			bias += weights[j] * cols[j][i]
		}
		lf[i] += bias
	}
	return nil
}
