package ml

import (
	"fmt"
	"io"
)

func LoadModel(modelType string, r io.Reader) (Model, error) {
	switch modelType {
	case "linear":
		return LoadLinearModel(r)
	case "decision_tree":
		return LoadDecisionTree(r)
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}
