package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// LinearModel is a fitted linear classifier such as logistic regression.
// A single coefficient row means a binary model that picks class 1 when
// the decision score is positive.
type LinearModel struct {
	classes   []string
	coef      [][]float64
	intercept []float64
}

type linearArtifact struct {
	Classes   []string    `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

func NewLinearModel(classes []string, coef [][]float64, intercept []float64) (*LinearModel, error) {
	m := &LinearModel{classes: classes, coef: coef, intercept: intercept}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func LoadLinearModel(r io.Reader) (*LinearModel, error) {
	var artifact linearArtifact
	if err := json.NewDecoder(r).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("decode linear model: %w", err)
	}
	return NewLinearModel(artifact.Classes, artifact.Coef, artifact.Intercept)
}

func (m *LinearModel) Predict(x Vector) (int, error) {
	if len(x) != m.Width() {
		return 0, fmt.Errorf("vector width %d does not match model width %d", len(x), m.Width())
	}
	scores := m.DecisionFunction(x)
	if len(scores) == 1 {
		if scores[0] > 0 {
			return 1, nil
		}
		return 0, nil
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best, nil
}

// DecisionFunction returns one raw score per coefficient row.
func (m *LinearModel) DecisionFunction(x Vector) []float64 {
	scores := make([]float64, len(m.coef))
	for k, row := range m.coef {
		score := m.intercept[k]
		for i, w := range row {
			if x[i] != 0 {
				score += w * x[i]
			}
		}
		scores[k] = score
	}
	return scores
}

func (m *LinearModel) Classes() []string { return m.classes }

func (m *LinearModel) Width() int {
	if len(m.coef) == 0 {
		return 0
	}
	return len(m.coef[0])
}

func (m *LinearModel) validate() error {
	if len(m.classes) < 2 {
		return errors.New("linear model needs at least two classes")
	}
	if len(m.coef) == 0 {
		return errors.New("linear model has no coefficients")
	}
	if len(m.coef) == 1 && len(m.classes) != 2 {
		return fmt.Errorf("binary coefficients with %d classes", len(m.classes))
	}
	if len(m.coef) > 1 && len(m.coef) != len(m.classes) {
		return fmt.Errorf("%d coefficient rows for %d classes", len(m.coef), len(m.classes))
	}
	if len(m.intercept) != len(m.coef) {
		return fmt.Errorf("%d intercepts for %d coefficient rows", len(m.intercept), len(m.coef))
	}
	width := len(m.coef[0])
	if width == 0 {
		return errors.New("linear model has zero width")
	}
	for k, row := range m.coef {
		if len(row) != width {
			return fmt.Errorf("coefficient row %d has width %d, want %d", k, len(row), width)
		}
	}
	return nil
}
