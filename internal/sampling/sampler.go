package sampling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"DSGE_OBC_Project/application/internal/model"
)

// Outcome is the verdict of a Target on one draw. A draw is accepted when
// Reason is nil and LProb is finite.
type Outcome struct {
	LProb  float64
	Reason error
}

// Accept returns an outcome carrying the log probability lp.
func Accept(lp float64) Outcome { return Outcome{LProb: lp} }

// Reject returns an outcome rejecting the draw for reason.
func Reject(reason error) Outcome { return Outcome{LProb: math.Inf(-1), Reason: reason} }

func (o Outcome) Accepted() bool {
	return o.Reason == nil && !math.IsInf(o.LProb, 0) && !math.IsNaN(o.LProb)
}

// Target evaluates a draw of the estimated subset. Implementations must be
// safe for concurrent use.
type Target interface {
	Evaluate(draw []float64) Outcome
}

// TargetFunc adapts a function to Target.
type TargetFunc func(draw []float64) Outcome

func (f TargetFunc) Evaluate(draw []float64) Outcome { return f(draw) }

// RetryPolicy bounds the attempts per draw. Zero MaxAttempts retries until a
// draw is accepted.
type RetryPolicy struct {
	MaxAttempts int
}

func (p RetryPolicy) exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// Stats summarizes a batch.
type Stats struct {
	Batch    string
	Draws    int
	Attempts int
	Rejected int
	Failed   int
	// Retries holds the rejected attempts of each draw, by draw index.
	Retries []int
}

// RejectedShare is the fraction of rejected attempts.
func (s Stats) RejectedShare() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Rejected) / float64(s.Attempts)
}

// PriorSampler draws from the independent prior marginals. A nil Target
// accepts every draw.
type PriorSampler struct {
	Priors  []model.Prior
	Target  Target
	Retry   RetryPolicy
	Seed    uint64
	Workers int
	Logger  *zap.Logger
}

type drawResult struct {
	x        []float64
	attempts int
	err      error
}

// Sample returns n draws ordered by index. Draws that run out of retries are
// nil and reported through ErrRetryBudget once the whole batch is done. The
// context is checked between attempts.
func (s *PriorSampler) Sample(ctx context.Context, n int) ([][]float64, Stats, error) {
	st := time.Now()
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	stats := Stats{Batch: uuid.NewString(), Draws: n}
	if _, err := Marginals(s.Priors); err != nil {
		return nil, stats, err
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]drawResult, n)
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			results[i] = s.draw(ctx, i, log)
			if results[i].err != nil && !errors.Is(results[i].err, ErrRetryBudget) {
				return results[i].err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	draws := make([][]float64, n)
	stats.Retries = make([]int, n)
	for i, r := range results {
		draws[i] = r.x
		stats.Attempts += r.attempts
		rejected := r.attempts - 1
		if r.err != nil {
			rejected = r.attempts
			stats.Failed++
		}
		stats.Retries[i] = rejected
		stats.Rejected += rejected
	}

	log.Info("prior sampling done",
		zap.String("batch", stats.Batch),
		zap.Int("draws", n),
		zap.Int("attempts", stats.Attempts),
		zap.Float64("rejected_share", stats.RejectedShare()),
		zap.Duration("elapsed", time.Since(st)))

	if stats.Failed > 0 {
		return draws, stats, fmt.Errorf("%d of %d draws: %w", stats.Failed, n, ErrRetryBudget)
	}
	return draws, stats, nil
}

// draw seeds its own generator with Seed + index. Every attempt takes a fresh
// seed from it and offsets it by the position of each marginal.
func (s *PriorSampler) draw(ctx context.Context, idx int, log *zap.Logger) drawResult {
	rng := rand.New(rand.NewPCG(s.Seed+uint64(idx), 0))
	var res drawResult
	for {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}
		res.attempts++
		rst := rng.Uint64()
		x := make([]float64, len(s.Priors))
		for sn, p := range s.Priors {
			d, err := NewMarginal(p, rand.NewPCG(rst+uint64(sn), 0))
			if err != nil {
				res.err = err
				return res
			}
			x[sn] = d.Rand()
		}
		if s.Target == nil {
			res.x = x
			return res
		}
		out := s.Target.Evaluate(x)
		if out.Accepted() {
			res.x = x
			return res
		}
		log.Debug("draw rejected",
			zap.Int("draw", idx),
			zap.Int("attempt", res.attempts),
			zap.Float64("lprob", out.LProb),
			zap.Error(out.Reason))
		if s.Retry.exhausted(res.attempts) {
			res.err = ErrRetryBudget
			return res
		}
	}
}
