package layers

import (
	"fmt"
	"math"

	"github.com/Bethhhh/ar1-go/nn"
	"github.com/Bethhhh/ar1-go/tensor"
)

// BatchNorm2D normalizes each channel with running statistics and applies a
// learnable affine transform. This layer evaluates in inference mode: the
// running statistics are fixed buffers, not updated by Forward.
type BatchNorm2D struct {
	channels int
	eps      float64

	W           *tensor.Tensor // gamma: [channels]
	B           *tensor.Tensor // beta: [channels]
	RunningMean *tensor.Tensor // [channels]
	RunningVar  *tensor.Tensor // [channels]
}

// NewBatchNorm2D creates a BatchNorm2D over the given channel count.
// Running variance starts at 1 so an uninitialized layer is numerically sane.
func NewBatchNorm2D(channels int) *BatchNorm2D {
	bn := &BatchNorm2D{
		channels:    channels,
		eps:         1e-5,
		W:           tensor.New(channels),
		B:           tensor.New(channels),
		RunningMean: tensor.New(channels),
		RunningVar:  tensor.New(channels),
	}
	for i := range bn.RunningVar.Data {
		bn.RunningVar.Data[i] = 1
	}
	return bn
}

// Params lists gamma/beta as trainable and the running stats as buffers.
func (bn *BatchNorm2D) Params() []nn.Param {
	return []nn.Param{
		{Name: "weight", Data: bn.W, Trainable: true},
		{Name: "bias", Data: bn.B, Trainable: true},
		{Name: "running_mean", Data: bn.RunningMean, Trainable: false},
		{Name: "running_var", Data: bn.RunningVar, Trainable: false},
	}
}

// Forward applies y = gamma*(x-mean)/sqrt(var+eps) + beta per channel.
func (bn *BatchNorm2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	var batch, height, width int
	switch len(input.Shape) {
	case 4:
		batch, height, width = input.Shape[0], input.Shape[2], input.Shape[3]
		if input.Shape[1] != bn.channels {
			return nil, fmt.Errorf("batchnorm2d: expected %d channels, got %d", bn.channels, input.Shape[1])
		}
	case 3:
		batch = 1
		height, width = input.Shape[1], input.Shape[2]
		if input.Shape[0] != bn.channels {
			return nil, fmt.Errorf("batchnorm2d: expected %d channels, got %d", bn.channels, input.Shape[0])
		}
	default:
		return nil, fmt.Errorf("batchnorm2d: input must be 3D or 4D, got %v", input.Shape)
	}

	out := tensor.New(input.Shape...)
	plane := height * width
	for ch := 0; ch < bn.channels; ch++ {
		scale := bn.W.Data[ch] / math.Sqrt(bn.RunningVar.Data[ch]+bn.eps)
		shift := bn.B.Data[ch] - bn.RunningMean.Data[ch]*scale
		for b := 0; b < batch; b++ {
			base := (b*bn.channels + ch) * plane
			for i := 0; i < plane; i++ {
				out.Data[base+i] = input.Data[base+i]*scale + shift
			}
		}
	}
	return out, nil
}
