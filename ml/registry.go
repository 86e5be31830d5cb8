package ml

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrNoPipeline = errors.New("no pipeline loaded")

type cachedLabel struct {
	pipeline *Pipeline
	label    string
}

// Registry serves predictions from the current pipeline. Pipelines are
// swapped whole, never mutated, so readers need no locks. Predictions are
// deterministic, which lets the registry memoize them per input. Entries are
// keyed by the SHA-256 of the text so the cache never holds request bodies.
type Registry struct {
	current atomic.Pointer[Pipeline]
	cache   *lru.Cache[textKey, cachedLabel]
}

type textKey [sha256.Size]byte

func keyOf(text string) textKey {
	return sha256.Sum256([]byte(text))
}

// NewRegistry creates a registry with an LRU of cacheSize entries; zero
// disables caching.
func NewRegistry(p *Pipeline, cacheSize int) (*Registry, error) {
	r := &Registry{}
	if cacheSize > 0 {
		cache, err := lru.New[textKey, cachedLabel](cacheSize)
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}
	if p != nil {
		r.current.Store(p)
	}
	return r, nil
}

// Swap installs p and drops cached labels from the previous pipeline.
func (r *Registry) Swap(p *Pipeline) {
	r.current.Store(p)
	if r.cache != nil {
		r.cache.Purge()
	}
}

func (r *Registry) Pipeline() *Pipeline {
	return r.current.Load()
}

func (r *Registry) Predict(ctx context.Context, text string) (string, error) {
	labels, err := r.PredictBatch(ctx, []string{text})
	if err != nil {
		return "", err
	}
	return labels[0], nil
}

func (r *Registry) PredictBatch(ctx context.Context, texts []string) ([]string, error) {
	p := r.current.Load()
	if p == nil {
		return nil, ErrNoPipeline
	}
	if r.cache == nil {
		return p.PredictBatch(ctx, texts)
	}

	out := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	var missKeys []textKey
	for i, text := range texts {
		key := keyOf(text)
		if hit, ok := r.cache.Get(key); ok && hit.pipeline == p {
			out[i] = hit.label
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
		missKeys = append(missKeys, key)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	labels, err := p.PredictBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = labels[j]
		r.cache.Add(missKeys[j], cachedLabel{pipeline: p, label: labels[j]})
	}
	return out, nil
}

// CacheLen reports the number of memoized predictions.
func (r *Registry) CacheLen() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Len()
}
