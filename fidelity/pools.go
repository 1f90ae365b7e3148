package fidelity

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/mfchem/mfchem/datasets"
)

// Pools records which rows carry a high fidelity label and which carry a
// low fidelity label. In superset mode every row is in the LF pool; in
// disjoint mode the two pools partition the dataset.
type Pools struct {
	HF       []int
	LF       []int
	Superset bool
}

// SplitPools samples the HF pool from n rows at the fraction implied by
// ratio. With superset the LF pool covers all rows and the HF fraction is
// 1/ratio; otherwise the HF fraction is 1/(ratio+1) and the LF pool is the
// complement. Both pools come back sorted.
func SplitPools(n, ratio int, superset bool, rng *rand.Rand) (*Pools, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cannot split %d rows into fidelity pools", n)
	}
	if ratio < 1 {
		return nil, fmt.Errorf("LF:HF size ratio must be at least 1, got %d", ratio)
	}

	var frac float64
	if superset {
		frac = 1.0 / float64(ratio)
	} else {
		frac = 1.0 / float64(ratio+1)
	}
	k := int(math.Round(frac * float64(n)))
	if k < 1 {
		k = 1
	}

	perm := rng.Perm(n)
	hf := append([]int(nil), perm[:k]...)
	sort.Ints(hf)

	var lf []int
	if superset {
		lf = make([]int, n)
		for i := range lf {
			lf[i] = i
		}
	} else {
		inHF := make(map[int]bool, k)
		for _, i := range hf {
			inHF[i] = true
		}
		for i := 0; i < n; i++ {
			if !inHF[i] {
				lf = append(lf, i)
			}
		}
	}
	return &Pools{HF: hf, LF: lf, Superset: superset}, nil
}

// MaskTargets blanks out the fidelity labels a row does not carry: the HF
// target becomes NaN on LF-only rows, and in disjoint mode the LF target
// becomes NaN on HF rows. Delta learning keeps both columns intact, so it
// must not call this.
func (p *Pools) MaskTargets(frame *datasets.Frame, hfCol, lfCol string) error {
	hf, err := frame.Column(hfCol)
	if err != nil {
		return err
	}
	lf, err := frame.Column(lfCol)
	if err != nil {
		return err
	}
	inHF := make(map[int]bool, len(p.HF))
	for _, i := range p.HF {
		inHF[i] = true
	}
	for _, i := range p.LF {
		if !inHF[i] {
			hf[i] = math.NaN()
		}
	}
	if !p.Superset {
		for _, i := range p.HF {
			lf[i] = math.NaN()
		}
	}
	return nil
}
