package ml

import "context"

// Vector is the fixed-width numeric representation of one document.
type Vector []float64

// Model is a fitted classifier. Implementations are immutable after
// loading and safe for concurrent use.
type Model interface {
	// Predict returns the index into Classes for x.
	Predict(x Vector) (int, error)
	Classes() []string
	// Width is the vector width the model was fitted on.
	Width() int
}

// Vectorizer maps a cleaned token sequence to a Vector of Width entries.
type Vectorizer interface {
	Transform(tokens []string) Vector
	Width() int
}

// Predictor is what the HTTP layer consumes.
type Predictor interface {
	Predict(ctx context.Context, text string) (string, error)
	PredictBatch(ctx context.Context, texts []string) ([]string, error)
}
