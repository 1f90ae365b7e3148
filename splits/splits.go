// Package splits partitions molecule datasets into train and test sets by
// several strategies: random, sorted-by-property extrapolation splits, and
// scaffold grouping.
package splits

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/mfchem/mfchem/chem"
	"github.com/mfchem/mfchem/datasets"
)

// Types lists every supported split strategy. "h298" sorts by the property
// column so the test set holds the highest values, "molwt" and "atom" sort
// by computed molecular weight and heavy atom count, and "scaffold" groups
// molecules by their ring framework.
var Types = []string{"random", "scaffold", "h298", "molwt", "atom"}

// Split partitions the frame's rows into train and test indices. propCol
// names the column used by the "h298" strategy; the structure-based
// strategies ignore it. Both returned slices are sorted.
func Split(frame *datasets.Frame, splitType, propCol string, testFrac float64, rng *rand.Rand) (train, test []int, err error) {
	n := frame.Len()
	if n < 2 {
		return nil, nil, fmt.Errorf("cannot split %d rows", n)
	}
	if testFrac <= 0 || testFrac >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %g", testFrac)
	}
	nTest := int(math.Round(testFrac * float64(n)))
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}

	switch splitType {
	case "random":
		perm := rng.Perm(n)
		test = append([]int(nil), perm[:nTest]...)
		train = append([]int(nil), perm[nTest:]...)
	case "h298":
		col, cerr := frame.Column(propCol)
		if cerr != nil {
			return nil, nil, cerr
		}
		vals := make([]float64, n)
		copy(vals, col)
		train, test = splitSorted(vals, nTest)
	case "molwt":
		vals, verr := molProperty(frame, func(m *chem.Mol) float64 { return m.MolWt() })
		if verr != nil {
			return nil, nil, verr
		}
		train, test = splitSorted(vals, nTest)
	case "atom":
		vals, verr := molProperty(frame, func(m *chem.Mol) float64 { return float64(m.HeavyAtomCount()) })
		if verr != nil {
			return nil, nil, verr
		}
		train, test = splitSorted(vals, nTest)
	case "scaffold":
		train, test, err = splitScaffold(frame, nTest)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("unknown split type %q (supported: %v)", splitType, Types)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

func molProperty(frame *datasets.Frame, prop func(*chem.Mol) float64) ([]float64, error) {
	vals := make([]float64, frame.Len())
	for i, smi := range frame.Smiles {
		mol, err := chem.ParseSMILES(smi)
		if err != nil {
			return nil, fmt.Errorf("split property for row %d (%q): %w", i, smi, err)
		}
		vals[i] = prop(mol)
	}
	return vals, nil
}

// splitSorted puts the rows with the nTest largest values into the test
// set, so the model must extrapolate beyond the training range.
func splitSorted(vals []float64, nTest int) (train, test []int) {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })
	cut := len(idx) - nTest
	return idx[:cut], idx[cut:]
}

// splitScaffold groups rows by scaffold key and assigns whole groups,
// largest first, to train until it is full; the remainder becomes the test
// set. Molecules sharing a ring framework never straddle the boundary.
func splitScaffold(frame *datasets.Frame, nTest int) (train, test []int, err error) {
	groups := make(map[string][]int)
	for i, smi := range frame.Smiles {
		mol, perr := chem.ParseSMILES(smi)
		if perr != nil {
			return nil, nil, fmt.Errorf("scaffold for row %d (%q): %w", i, smi, perr)
		}
		key := mol.ScaffoldKey()
		groups[key] = append(groups[key], i)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	// largest groups first; ties broken by key for determinism
	sort.Slice(keys, func(a, b int) bool {
		if len(groups[keys[a]]) != len(groups[keys[b]]) {
			return len(groups[keys[a]]) > len(groups[keys[b]])
		}
		return keys[a] < keys[b]
	})

	trainCap := frame.Len() - nTest
	for _, k := range keys {
		if len(train)+len(groups[k]) <= trainCap {
			train = append(train, groups[k]...)
		} else {
			test = append(test, groups[k]...)
		}
	}
	if len(test) == 0 {
		return nil, nil, fmt.Errorf("scaffold split produced an empty test set")
	}
	return train, test, nil
}

// TrainValSplit carves a validation set out of training indices. valFrac of
// the rows, chosen at random, become the validation set.
func TrainValSplit(indices []int, valFrac float64, rng *rand.Rand) (train, val []int, err error) {
	n := len(indices)
	if n < 2 {
		return nil, nil, fmt.Errorf("cannot carve a validation set out of %d rows", n)
	}
	if valFrac <= 0 || valFrac >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in (0, 1), got %g", valFrac)
	}
	nVal := int(math.Round(valFrac * float64(n)))
	if nVal < 1 {
		nVal = 1
	}
	if nVal >= n {
		nVal = n - 1
	}
	perm := rng.Perm(n)
	val = make([]int, 0, nVal)
	train = make([]int, 0, n-nVal)
	for pos, p := range perm {
		if pos < nVal {
			val = append(val, indices[p])
		} else {
			train = append(train, indices[p])
		}
	}
	sort.Ints(train)
	sort.Ints(val)
	return train, val, nil
}
