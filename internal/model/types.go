package model

import "fmt"

const (
	ImageSize = 224
	Channels  = 3

	// TensorLen is the number of values in one preprocessed image.
	TensorLen = ImageSize * ImageSize * Channels
)

// Classes is index-aligned with the model's output vector.
var Classes = []string{
	"Angry",
	"Disgust",
	"Fear",
	"Happy",
	"Neutral",
	"Sad",
	"Surprise",
}

// Tensor is a single normalized RGB image laid out NHWC with a batch of 1.
type Tensor struct {
	Data []float32
}

// NewTensor wraps data, which must hold exactly TensorLen values.
func NewTensor(data []float32) (Tensor, error) {
	if len(data) != TensorLen {
		return Tensor{}, fmt.Errorf("expected %d values, got %d", TensorLen, len(data))
	}
	return Tensor{Data: data}, nil
}

// Shape is always (1, 224, 224, 3).
func (t Tensor) Shape() []int64 {
	return []int64{1, ImageSize, ImageSize, Channels}
}

type Prediction struct {
	Label string
	Score float32
}
