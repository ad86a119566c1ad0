package model

import (
	"errors"
	"fmt"
	"math"
)

// Error definitions for the model package.
var (
	ErrModelNotFound = errors.New("model file not found")
	ErrInvalidModel  = errors.New("invalid model")
	ErrInference     = errors.New("prediction failed")
)

// Predictor runs a forward pass and returns one score per class.
type Predictor interface {
	Predict(t Tensor) ([]float32, error)
}

// Classify runs p on t and picks the highest scoring class.
func Classify(p Predictor, t Tensor) (Prediction, error) {
	scores, err := p.Predict(t)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(scores) != len(Classes) {
		return Prediction{}, fmt.Errorf("%w: model returned %d scores for %d classes",
			ErrInference, len(scores), len(Classes))
	}

	idx := Argmax(scores)
	score := float64(scores[idx])
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Prediction{}, fmt.Errorf("%w: non-finite score %v for %s", ErrInference, score, Classes[idx])
	}

	return Prediction{Label: Classes[idx], Score: scores[idx]}, nil
}

// Argmax returns the index of the first maximum in scores, or -1 if scores
// is empty.
func Argmax(scores []float32) int {
	if len(scores) == 0 {
		return -1
	}
	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores[1:] {
		if val > maxVal {
			maxVal = val
			maxIdx = i + 1
		}
	}
	return maxIdx
}
