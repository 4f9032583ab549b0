package metric

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/mbrdecode/mbr-decode/internal/pkg/hash"
)

// WithCache wraps a metric with a score cache. Metrics that support
// pairwise scoring keep that capability through the wrapper. A nil
// cache returns the metric unchanged.
func WithCache(m Metric, cache ScoreCache) Metric {
	if cache == nil {
		return m
	}

	cm := &CachedMetric{inner: m, cache: cache}
	if ps, ok := m.(PairwiseScorer); ok {
		return &cachedPairwise{CachedMetric: cm, pairwise: ps}
	}
	return cm
}

// CachedMetric serves scores from a cache and delegates misses to the
// wrapped metric in a single batch.
type CachedMetric struct {
	inner Metric
	cache ScoreCache
}

// Name returns the wrapped metric's registry name.
func (c *CachedMetric) Name() string { return c.inner.Name() }

// Score evaluates a single hypothesis-reference pair.
func (c *CachedMetric) Score(ctx context.Context, hypothesis, reference, source string) (float64, error) {
	key := hash.ScoreKey(c.inner.Name(), hypothesis, reference, source)
	if score, ok := c.cache.Get(ctx, key); ok {
		return score, nil
	}

	score, err := c.inner.Score(ctx, hypothesis, reference, source)
	if err != nil {
		return 0, err
	}

	c.cache.Set(ctx, key, score)
	return score, nil
}

// Scores evaluates a batch of hypotheses against one reference,
// fetching only cache misses from the wrapped metric.
func (c *CachedMetric) Scores(ctx context.Context, hypotheses []string, reference, source string) ([]float64, error) {
	results := make([]float64, len(hypotheses))
	uncached := make([]int, 0)
	uncachedHyps := make([]string, 0)

	for i, h := range hypotheses {
		key := hash.ScoreKey(c.inner.Name(), h, reference, source)
		if score, ok := c.cache.Get(ctx, key); ok {
			results[i] = score
		} else {
			uncached = append(uncached, i)
			uncachedHyps = append(uncachedHyps, h)
		}
	}

	if len(uncachedHyps) > 0 {
		scores, err := c.inner.Scores(ctx, uncachedHyps, reference, source)
		if err != nil {
			return nil, err
		}

		for i, idx := range uncached {
			results[idx] = scores[i]
			key := hash.ScoreKey(c.inner.Name(), uncachedHyps[i], reference, source)
			c.cache.Set(ctx, key, scores[i])
		}
	}

	return results, nil
}

// WithCacheReferenceless wraps a reference-free metric with a score
// cache. Keys leave the reference slot empty, so entries never collide
// with reference-based scores of the same metric name. A nil cache
// returns the metric unchanged.
func WithCacheReferenceless(m MetricReferenceless, cache ScoreCache) MetricReferenceless {
	if cache == nil {
		return m
	}
	return &cachedReferenceless{inner: m, cache: cache}
}

type cachedReferenceless struct {
	inner MetricReferenceless
	cache ScoreCache
}

// Name returns the wrapped metric's registry name.
func (c *cachedReferenceless) Name() string { return c.inner.Name() }

// Score evaluates a single hypothesis against the source.
func (c *cachedReferenceless) Score(ctx context.Context, hypothesis, source string) (float64, error) {
	key := hash.ScoreKey(c.inner.Name(), hypothesis, "", source)
	if score, ok := c.cache.Get(ctx, key); ok {
		return score, nil
	}

	score, err := c.inner.Score(ctx, hypothesis, source)
	if err != nil {
		return 0, err
	}

	c.cache.Set(ctx, key, score)
	return score, nil
}

// Scores evaluates a batch of hypotheses against the source, fetching
// only cache misses from the wrapped metric.
func (c *cachedReferenceless) Scores(ctx context.Context, hypotheses []string, source string) ([]float64, error) {
	results := make([]float64, len(hypotheses))
	uncached := make([]int, 0)
	uncachedHyps := make([]string, 0)

	for i, h := range hypotheses {
		key := hash.ScoreKey(c.inner.Name(), h, "", source)
		if score, ok := c.cache.Get(ctx, key); ok {
			results[i] = score
		} else {
			uncached = append(uncached, i)
			uncachedHyps = append(uncachedHyps, h)
		}
	}

	if len(uncachedHyps) > 0 {
		scores, err := c.inner.Scores(ctx, uncachedHyps, source)
		if err != nil {
			return nil, err
		}

		for i, idx := range uncached {
			results[idx] = scores[i]
			key := hash.ScoreKey(c.inner.Name(), uncachedHyps[i], "", source)
			c.cache.Set(ctx, key, scores[i])
		}
	}

	return results, nil
}

// cachedPairwise preserves the pairwise upgrade of the wrapped metric.
// Grid calls go straight through; one round trip needs no cache.
type cachedPairwise struct {
	*CachedMetric
	pairwise PairwiseScorer
}

func (c *cachedPairwise) PairwiseScores(ctx context.Context, hypotheses, references []string, source string) (*mat.Dense, error) {
	return c.pairwise.PairwiseScores(ctx, hypotheses, references, source)
}
