package sampling

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Chain is a stored ensemble MCMC chain indexed by step, walker and
// parameter. Only the last Tune steps are used; Tune <= 0 uses all of them.
type Chain struct {
	Samples [][][]float64
	Tune    int
}

// Tail returns the samples of all walkers over the last Tune steps.
func (c *Chain) Tail() [][]float64 {
	start := len(c.Samples) - c.Tune
	if c.Tune <= 0 || start < 0 {
		start = 0
	}
	var out [][]float64
	for _, step := range c.Samples[start:] {
		out = append(out, step...)
	}
	return out
}

// Mean is the mean over the tail.
func (c *Chain) Mean() ([]float64, error) {
	tail := c.Tail()
	if len(tail) == 0 {
		return nil, ErrEmptyChain
	}
	mean := make([]float64, len(tail[0]))
	for _, x := range tail {
		floats.Add(mean, x)
	}
	floats.Scale(1/float64(len(tail)), mean)
	return mean, nil
}

// PosteriorSampler resamples uniformly with replacement from a chain tail.
type PosteriorSampler struct {
	Chain *Chain
	Seed  uint64
}

func (s *PosteriorSampler) Sample(n int) ([][]float64, error) {
	tail := s.Chain.Tail()
	if len(tail) == 0 {
		return nil, ErrEmptyChain
	}
	rng := rand.New(rand.NewPCG(s.Seed, 0))
	out := make([][]float64, n)
	for i := range out {
		out[i] = append([]float64(nil), tail[rng.IntN(len(tail))]...)
	}
	return out, nil
}
