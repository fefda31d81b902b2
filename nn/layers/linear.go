package layers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/Bethhhh/ar1-go/nn"
	"github.com/Bethhhh/ar1-go/tensor"
)

// Linear is a fully-connected layer computing y = xW^T + b over batch-major
// input [batch, in].
type Linear struct {
	inDim, outDim int
	role          Role

	W *tensor.Tensor // [outDim, inDim]
	B *tensor.Tensor // [outDim], nil when the layer has no bias
}

// NewLinear creates a Linear layer mapping inDim to outDim features.
func NewLinear(inDim, outDim int, bias bool, role Role) *Linear {
	l := &Linear{
		inDim:  inDim,
		outDim: outDim,
		role:   role,
		W:      tensor.New(outDim, inDim),
	}
	if bias {
		l.B = tensor.New(outDim)
	}
	return l
}

// Role returns the structural role assigned at construction.
func (l *Linear) Role() Role { return l.role }

// FanIn returns the input feature count.
func (l *Linear) FanIn() int { return l.inDim }

// FanOut returns the output feature count.
func (l *Linear) FanOut() int { return l.outDim }

// Params lists the weight and, when present, the bias.
func (l *Linear) Params() []nn.Param {
	out := []nn.Param{{Name: "weight", Data: l.W, Trainable: true}}
	if l.B != nil {
		out = append(out, nn.Param{Name: "bias", Data: l.B, Trainable: true})
	}
	return out
}

// Forward computes the projection. A 1-D input is treated as a single sample.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	single := false
	if len(x.Shape) == 1 {
		single = true
		var err error
		if x, err = x.Reshape(1, x.Shape[0]); err != nil {
			return nil, err
		}
	}
	if len(x.Shape) != 2 {
		return nil, fmt.Errorf("linear: input must be 1D or 2D, got %v", x.Shape)
	}
	batch := x.Shape[0]
	if x.Shape[1] != l.inDim {
		return nil, fmt.Errorf("linear: expected %d input features, got %d", l.inDim, x.Shape[1])
	}

	xm := mat.NewDense(batch, l.inDim, x.Data)
	wm := mat.NewDense(l.outDim, l.inDim, l.W.Data)
	var ym mat.Dense
	ym.Mul(xm, wm.T())

	out := tensor.New(batch, l.outDim)
	raw := ym.RawMatrix()
	for r := 0; r < batch; r++ {
		copy(out.Data[r*l.outDim:(r+1)*l.outDim], raw.Data[r*raw.Stride:r*raw.Stride+l.outDim])
	}
	if l.B != nil {
		for r := 0; r < batch; r++ {
			for j := 0; j < l.outDim; j++ {
				out.Data[r*l.outDim+j] += l.B.Data[j]
			}
		}
	}
	if single {
		return out.Reshape(l.outDim)
	}
	return out, nil
}
