package mpnn

import (
	"fmt"
	"math/rand"

	"github.com/mfchem/mfchem/datasets"
)

// encoder is a directed message passing network over bond messages. Each
// directed bond carries a hidden state; messages flow along bonds for Depth
// steps, excluding the reverse of the bond being updated, and atoms read
// out the sum of their incoming bond states. Molecule vectors are the mean
// of their atom states.
type encoder struct {
	atomDim int
	bondDim int
	hidden  int
	depth   int

	wi *linear // cat(atom, bond) -> hidden
	wh *linear // hidden -> hidden, no bias
	wo *linear // cat(atom, hidden) -> hidden
}

func newEncoder(atomDim, bondDim, hidden, depth int, rng *rand.Rand) *encoder {
	return &encoder{
		atomDim: atomDim,
		bondDim: bondDim,
		hidden:  hidden,
		depth:   depth,
		wi:      newLinear(atomDim+bondDim, hidden, true, rng),
		wh:      newLinear(hidden, hidden, false, rng),
		wo:      newLinear(atomDim+hidden, hidden, true, rng),
	}
}

func (e *encoder) layers() []*linear { return []*linear{e.wi, e.wh, e.wo} }

// encoderCache holds everything the backward pass needs. Index 0 of every
// per-bond and per-atom array is the zero-padding entry; its hidden state
// is pinned to zero so padded adjacency lookups contribute nothing.
type encoderCache struct {
	batch *datasets.BatchGraph

	bondIn [][]float64   // cat(source atom, bond) inputs to wi
	hs     [][][]float64 // hidden bond states per step, hs[0] is h0
	ms     [][][]float64 // message inputs to wh per step, ms[t] feeds hs[t]
	atomIn [][]float64   // cat(atom, summed messages) inputs to wo
	atomH  [][]float64   // atom hidden states after wo and ReLU
	mols   [][]float64   // molecule vectors, mean over atom scope
}

func relu(x []float64) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// forward encodes a batch into molecule vectors.
func (e *encoder) forward(b *datasets.BatchGraph) (*encoderCache, error) {
	if b.AtomDim != e.atomDim || b.BondDim != e.bondDim {
		return nil, fmt.Errorf("batch feature dims (%d,%d) do not match encoder (%d,%d)",
			b.AtomDim, b.BondDim, e.atomDim, e.bondDim)
	}
	c := &encoderCache{
		batch:  b,
		bondIn: make([][]float64, b.NBonds),
		hs:     make([][][]float64, e.depth),
		ms:     make([][][]float64, e.depth),
	}

	// initial bond states from source atom and bond features
	h0 := make([][]float64, b.NBonds)
	h0[0] = make([]float64, e.hidden)
	for bd := 1; bd < b.NBonds; bd++ {
		in := make([]float64, 0, e.atomDim+e.bondDim)
		in = append(in, b.AtomFeatures[b.B2A[bd]]...)
		in = append(in, b.BondFeatures[bd]...)
		c.bondIn[bd] = in
		h := e.wi.forward(in)
		relu(h)
		h0[bd] = h
	}
	c.hs[0] = h0

	h := h0
	for t := 1; t < e.depth; t++ {
		m := make([][]float64, b.NBonds)
		next := make([][]float64, b.NBonds)
		next[0] = make([]float64, e.hidden)
		for bd := 1; bd < b.NBonds; bd++ {
			// sum of bonds into the source atom, minus the reverse bond
			msg := make([]float64, e.hidden)
			for _, k := range b.A2B[b.B2A[bd]] {
				for i, v := range h[k] {
					msg[i] += v
				}
			}
			for i, v := range h[b.B2RevB[bd]] {
				msg[i] -= v
			}
			m[bd] = msg

			nh := e.wh.forward(msg)
			for i := range nh {
				nh[i] += h0[bd][i]
			}
			relu(nh)
			next[bd] = nh
		}
		c.ms[t] = m
		c.hs[t] = next
		h = next
	}

	// atom readout: sum of incoming bond states
	c.atomIn = make([][]float64, b.NAtoms)
	c.atomH = make([][]float64, b.NAtoms)
	c.atomH[0] = make([]float64, e.hidden)
	for a := 1; a < b.NAtoms; a++ {
		sum := make([]float64, e.hidden)
		for _, k := range b.A2B[a] {
			for i, v := range h[k] {
				sum[i] += v
			}
		}
		in := make([]float64, 0, e.atomDim+e.hidden)
		in = append(in, b.AtomFeatures[a]...)
		in = append(in, sum...)
		c.atomIn[a] = in
		ha := e.wo.forward(in)
		relu(ha)
		c.atomH[a] = ha
	}

	// mean aggregation over each molecule's atoms
	c.mols = make([][]float64, len(b.AScope))
	for mi, scope := range b.AScope {
		vec := make([]float64, e.hidden)
		for a := scope[0]; a < scope[0]+scope[1]; a++ {
			for i, v := range c.atomH[a] {
				vec[i] += v
			}
		}
		inv := 1.0 / float64(scope[1])
		for i := range vec {
			vec[i] *= inv
		}
		c.mols[mi] = vec
	}
	return c, nil
}

// backward accumulates parameter gradients from per-molecule vector
// gradients. dMols must align with the batch's molecule order.
func (e *encoder) backward(c *encoderCache, dMols [][]float64) {
	b := c.batch
	hFinal := c.hs[e.depth-1]

	// through the mean aggregation into atom states
	dAtomH := make([][]float64, b.NAtoms)
	for mi, scope := range b.AScope {
		inv := 1.0 / float64(scope[1])
		for a := scope[0]; a < scope[0]+scope[1]; a++ {
			g := make([]float64, e.hidden)
			for i, v := range dMols[mi] {
				g[i] = v * inv
			}
			dAtomH[a] = g
		}
	}

	// through wo and the incoming-bond sum into final bond states
	dh := make([][]float64, b.NBonds)
	for bd := range dh {
		dh[bd] = make([]float64, e.hidden)
	}
	for a := 1; a < b.NAtoms; a++ {
		if dAtomH[a] == nil {
			continue
		}
		dPre := make([]float64, e.hidden)
		for i, v := range dAtomH[a] {
			if c.atomH[a][i] > 0 {
				dPre[i] = v
			}
		}
		e.wo.accumGrad(c.atomIn[a], dPre)
		dIn := e.wo.backward(dPre)
		dSum := dIn[e.atomDim:]
		for _, k := range b.A2B[a] {
			if k == 0 {
				continue
			}
			for i, v := range dSum {
				dh[k][i] += v
			}
		}
	}

	// reverse through the message passing steps, accumulating the residual
	// gradient onto h0 at every step
	dh0 := make([][]float64, b.NBonds)
	for bd := range dh0 {
		dh0[bd] = make([]float64, e.hidden)
	}
	h := hFinal
	for t := e.depth - 1; t >= 1; t-- {
		dhPrev := make([][]float64, b.NBonds)
		for bd := range dhPrev {
			dhPrev[bd] = make([]float64, e.hidden)
		}
		for bd := 1; bd < b.NBonds; bd++ {
			dPre := make([]float64, e.hidden)
			var live bool
			for i, v := range dh[bd] {
				if h[bd][i] > 0 {
					dPre[i] = v
					if v != 0 {
						live = true
					}
				}
			}
			if !live {
				continue
			}
			for i, v := range dPre {
				dh0[bd][i] += v
			}
			e.wh.accumGrad(c.ms[t][bd], dPre)
			dM := e.wh.backward(dPre)
			for _, k := range b.A2B[b.B2A[bd]] {
				if k == 0 {
					continue
				}
				for i, v := range dM {
					dhPrev[k][i] += v
				}
			}
			rev := b.B2RevB[bd]
			for i, v := range dM {
				dhPrev[rev][i] -= v
			}
		}
		dh = dhPrev
		h = c.hs[t-1]
	}

	// dh now holds the message-path gradient onto h0; add the residual
	// accumulation and push through wi
	h0 := c.hs[0]
	for bd := 1; bd < b.NBonds; bd++ {
		dPre := make([]float64, e.hidden)
		var live bool
		for i := range dPre {
			v := dh[bd][i] + dh0[bd][i]
			if v != 0 && h0[bd][i] > 0 {
				dPre[i] = v
				live = true
			}
		}
		if live {
			e.wi.accumGrad(c.bondIn[bd], dPre)
		}
	}
}
