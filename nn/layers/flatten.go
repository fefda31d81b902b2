package layers

import (
	"fmt"

	"github.com/Bethhhh/ar1-go/tensor"
)

// Flatten reshapes [batch, ...] to [batch, rest], keeping the batch axis.
type Flatten struct{}

// NewFlatten returns a Flatten layer.
func NewFlatten() *Flatten { return &Flatten{} }

// Forward flattens all trailing dimensions per sample.
func (f *Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) < 2 {
		return nil, fmt.Errorf("flatten: input must have a batch axis, got %v", x.Shape)
	}
	rest := 1
	for _, d := range x.Shape[1:] {
		rest *= d
	}
	return x.Reshape(x.Shape[0], rest)
}
