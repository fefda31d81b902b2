package layers

import (
	"fmt"

	"github.com/Bethhhh/ar1-go/tensor"
)

// AvgPool2D averages over kernel x kernel windows with the given stride.
type AvgPool2D struct {
	kernel int
	stride int
}

// NewAvgPool2D creates an average pooling layer. A stride of 0 defaults to
// the kernel size (non-overlapping windows).
func NewAvgPool2D(kernel, stride int) *AvgPool2D {
	if stride == 0 {
		stride = kernel
	}
	return &AvgPool2D{kernel: kernel, stride: stride}
}

// Kernel returns the pooling window size.
func (a *AvgPool2D) Kernel() int { return a.kernel }

// Forward pools [B,C,H,W] (or [C,H,W]) down to the strided window grid.
func (a *AvgPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var batch, chans, height, width int
	switch len(x.Shape) {
	case 4:
		batch, chans, height, width = x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	case 3:
		batch = 1
		chans, height, width = x.Shape[0], x.Shape[1], x.Shape[2]
	default:
		return nil, fmt.Errorf("avgpool2d: input must be 3D or 4D, got %v", x.Shape)
	}
	k, s := a.kernel, a.stride
	if height < k || width < k {
		return nil, fmt.Errorf("avgpool2d: input %dx%d smaller than kernel %d", height, width, k)
	}
	outH := (height-k)/s + 1
	outW := (width-k)/s + 1

	outShape := []int{chans, outH, outW}
	if len(x.Shape) == 4 {
		outShape = []int{batch, chans, outH, outW}
	}
	out := tensor.New(outShape...)
	inv := 1.0 / float64(k*k)
	for b := 0; b < batch; b++ {
		for c := 0; c < chans; c++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					sum := 0.0
					for ph := 0; ph < k; ph++ {
						for pw := 0; pw < k; pw++ {
							ih := oh*s + ph
							iw := ow*s + pw
							sum += x.Data[((b*chans+c)*height+ih)*width+iw]
						}
					}
					out.Data[((b*chans+c)*outH+oh)*outW+ow] = sum * inv
				}
			}
		}
	}
	return out, nil
}
