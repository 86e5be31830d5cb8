package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type DecisionTree struct {
	classes []string
	nodes   []TreeNode
	width   int
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
}

type treeArtifact struct {
	Classes []string   `json:"classes"`
	Width   int        `json:"n_features"`
	Nodes   []TreeNode `json:"nodes"`
}

func NewDecisionTree(classes []string, width int, nodes []TreeNode) (*DecisionTree, error) {
	dt := &DecisionTree{classes: classes, nodes: nodes, width: width}
	if err := dt.validate(); err != nil {
		return nil, err
	}
	return dt, nil
}

func LoadDecisionTree(r io.Reader) (*DecisionTree, error) {
	var artifact treeArtifact
	if err := json.NewDecoder(r).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("decode decision tree: %w", err)
	}
	return NewDecisionTree(artifact.Classes, artifact.Width, artifact.Nodes)
}

func (dt *DecisionTree) Predict(features Vector) (int, error) {
	if len(dt.nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	idx := 0
	// A valid tree reaches a leaf in at most len(nodes) steps.
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("tree contains a cycle")
}

func (dt *DecisionTree) Classes() []string { return dt.classes }

func (dt *DecisionTree) Width() int { return dt.width }

func (dt *DecisionTree) validate() error {
	if len(dt.nodes) == 0 {
		return errors.New("decision tree has no nodes")
	}
	if len(dt.classes) < 2 {
		return errors.New("decision tree needs at least two classes")
	}
	if dt.width <= 0 {
		return errors.New("decision tree n_features must be positive")
	}
	for i, node := range dt.nodes {
		if node.IsLeaf {
			if node.ClassLabel < 0 || node.ClassLabel >= len(dt.classes) {
				return fmt.Errorf("node %d: class label %d out of range", i, node.ClassLabel)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= dt.width {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= 0 || node.LeftChild >= len(dt.nodes) ||
			node.RightChild <= 0 || node.RightChild >= len(dt.nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}
