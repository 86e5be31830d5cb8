package ml

import (
	"context"
	"fmt"
)

// Tokenizer is the text cleaning step in front of the vectorizer.
type Tokenizer interface {
	Tokens(text string) []string
}

// Pipeline chains preprocessing, vectorization, and model inference. It is
// immutable once built and shared by all requests without locking.
type Pipeline struct {
	tokenizer  Tokenizer
	vectorizer Vectorizer
	model      Model
	labels     map[string]string
}

// NewPipeline rejects a model and vectorizer that disagree on vector width.
// labels maps model class names to response labels; unmapped classes are
// returned unchanged.
func NewPipeline(tokenizer Tokenizer, vectorizer Vectorizer, model Model, labels map[string]string) (*Pipeline, error) {
	if tokenizer == nil || vectorizer == nil || model == nil {
		return nil, fmt.Errorf("pipeline requires tokenizer, vectorizer and model")
	}
	if vectorizer.Width() != model.Width() {
		return nil, fmt.Errorf("vectorizer width %d does not match model width %d", vectorizer.Width(), model.Width())
	}
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	return &Pipeline{tokenizer: tokenizer, vectorizer: vectorizer, model: model, labels: copied}, nil
}

// Predict runs a single text through the pipeline as a one-row batch.
func (p *Pipeline) Predict(ctx context.Context, text string) (string, error) {
	labels, err := p.PredictBatch(ctx, []string{text})
	if err != nil {
		return "", err
	}
	return labels[0], nil
}

func (p *Pipeline) PredictBatch(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	classes := p.model.Classes()
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := p.vectorizer.Transform(p.tokenizer.Tokens(text))
		idx, err := p.model.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("predict row %d: %w", i, err)
		}
		if idx < 0 || idx >= len(classes) {
			return nil, fmt.Errorf("predict row %d: class index %d out of range", i, idx)
		}
		out[i] = p.label(classes[idx])
	}
	return out, nil
}

// Labels returns the distinct response labels the pipeline can produce.
func (p *Pipeline) Labels() []string {
	classes := p.model.Classes()
	out := make([]string, 0, len(classes))
	for _, class := range classes {
		out = append(out, p.label(class))
	}
	return out
}

func (p *Pipeline) label(class string) string {
	if mapped, ok := p.labels[class]; ok {
		return mapped
	}
	return class
}
