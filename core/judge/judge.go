// Package judge decides whether an observed output tensor matches a claimed target.
//
// Only row 0 of each tensor is compared. Multi-row tensors must agree on their
// row count, but rows after the first do not contribute to the distance.
package judge

import (
	"errors"
	"fmt"

	"zkml-orchestrator/core/models"

	"gonum.org/v1/gonum/floats"
)

// DefaultThreshold is the acceptance threshold used by deployments that do not set one
const DefaultThreshold = 0.1

// ErrShapeMismatch is returned when two tensors cannot be compared
var ErrShapeMismatch = errors.New("shape mismatch")

// Distance returns the Euclidean distance between row 0 of a and row 0 of b
func Distance(a, b models.Tensor) (float64, error) {
	if len(a.Data) != len(b.Data) {
		return 0, fmt.Errorf("%w: %d rows vs %d rows", ErrShapeMismatch, len(a.Data), len(b.Data))
	}
	if len(a.Data) == 0 {
		return 0, fmt.Errorf("%w: tensors have no rows", ErrShapeMismatch)
	}
	if len(a.Data[0]) != len(b.Data[0]) {
		return 0, fmt.Errorf("%w: row 0 has %d values vs %d", ErrShapeMismatch, len(a.Data[0]), len(b.Data[0]))
	}
	return floats.Distance(a.Data[0], b.Data[0], 2), nil
}

// Judge accepts when distance is strictly below threshold
func Judge(distance, threshold float64) bool {
	return distance < threshold
}

// Evaluate computes the distance and judges it in one step
func Evaluate(observed, target models.Tensor, threshold float64) (models.JudgeResult, error) {
	d, err := Distance(observed, target)
	if err != nil {
		return models.JudgeResult{}, err
	}
	return models.JudgeResult{Accepted: Judge(d, threshold), Distance: d}, nil
}
