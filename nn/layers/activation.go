package layers

import (
	"github.com/Bethhhh/ar1-go/tensor"
)

// ReLU applies max(0, x) elementwise.
type ReLU struct{}

// NewReLU returns a ReLU activation layer.
func NewReLU() *ReLU { return &ReLU{} }

// Forward clamps negative values to zero.
func (r *ReLU) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out, nil
}
