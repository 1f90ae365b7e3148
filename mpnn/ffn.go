package mpnn

import "math/rand"

// ffn is the readout head: a small MLP with ReLU hidden activations and a
// linear output.
type ffn struct {
	layerList []*linear
}

// newFFN builds a head with hiddenLayers hidden layers of width hidden
// between the in and out dims. hiddenLayers of 0 makes it a single linear
// map.
func newFFN(in, hidden, out, hiddenLayers int, rng *rand.Rand) *ffn {
	f := &ffn{}
	prev := in
	for i := 0; i < hiddenLayers; i++ {
		f.layerList = append(f.layerList, newLinear(prev, hidden, true, rng))
		prev = hidden
	}
	f.layerList = append(f.layerList, newLinear(prev, out, true, rng))
	return f
}

func (f *ffn) layers() []*linear { return f.layerList }

// ffnCache stores the activations of one forward pass; acts[0] is the
// input and acts[len] is the output.
type ffnCache struct {
	acts [][]float64
}

func (f *ffn) forward(x []float64) ([]float64, *ffnCache) {
	c := &ffnCache{acts: make([][]float64, len(f.layerList)+1)}
	c.acts[0] = x
	for l, layer := range f.layerList {
		out := layer.forward(c.acts[l])
		if l < len(f.layerList)-1 {
			relu(out)
		}
		c.acts[l+1] = out
	}
	return c.acts[len(c.acts)-1], c
}

// backward accumulates parameter gradients and returns the gradient with
// respect to the input.
func (f *ffn) backward(c *ffnCache, dOut []float64) []float64 {
	delta := dOut
	for l := len(f.layerList) - 1; l >= 0; l-- {
		layer := f.layerList[l]
		layer.accumGrad(c.acts[l], delta)
		delta = layer.backward(delta)
		if l > 0 {
			// ReLU mask of the activation feeding this layer
			act := c.acts[l]
			for i := range delta {
				if act[i] <= 0 {
					delta[i] = 0
				}
			}
		}
	}
	return delta
}
