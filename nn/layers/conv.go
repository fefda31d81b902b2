package layers

import (
	"fmt"

	"github.com/Bethhhh/ar1-go/nn"
	"github.com/Bethhhh/ar1-go/tensor"
)

// Conv2D is a 2D convolutional layer with stride, zero padding and channel
// groups. With groups == inChan it computes a depthwise convolution.
type Conv2D struct {
	inChan, outChan int
	kh, kw          int
	stride          int
	pad             int
	groups          int
	role            Role

	W *tensor.Tensor // weights: [outChan, inChan/groups, kh, kw]
	B *tensor.Tensor // bias: [outChan], nil when the layer has no bias
}

// Conv2DSpec carries the construction parameters for a Conv2D.
type Conv2DSpec struct {
	InChannels  int
	OutChannels int
	KernelH     int
	KernelW     int
	Stride      int
	Padding     int
	Groups      int
	Bias        bool
	Role        Role
}

// NewConv2D creates a new Conv2D layer.
func NewConv2D(spec Conv2DSpec) (*Conv2D, error) {
	if spec.Groups == 0 {
		spec.Groups = 1
	}
	if spec.Stride == 0 {
		spec.Stride = 1
	}
	if spec.InChannels <= 0 || spec.OutChannels <= 0 {
		return nil, fmt.Errorf("conv2d: invalid channels in=%d out=%d", spec.InChannels, spec.OutChannels)
	}
	if spec.KernelH <= 0 || spec.KernelW <= 0 {
		return nil, fmt.Errorf("conv2d: invalid kernel %dx%d", spec.KernelH, spec.KernelW)
	}
	if spec.Stride < 1 {
		return nil, fmt.Errorf("conv2d: invalid stride %d", spec.Stride)
	}
	if spec.InChannels%spec.Groups != 0 || spec.OutChannels%spec.Groups != 0 {
		return nil, fmt.Errorf("conv2d: channels (%d->%d) not divisible by groups %d",
			spec.InChannels, spec.OutChannels, spec.Groups)
	}
	c := &Conv2D{
		inChan:  spec.InChannels,
		outChan: spec.OutChannels,
		kh:      spec.KernelH,
		kw:      spec.KernelW,
		stride:  spec.Stride,
		pad:     spec.Padding,
		groups:  spec.Groups,
		role:    spec.Role,
		W:       tensor.New(spec.OutChannels, spec.InChannels/spec.Groups, spec.KernelH, spec.KernelW),
	}
	if spec.Bias {
		c.B = tensor.New(spec.OutChannels)
	}
	return c, nil
}

// Role returns the structural role assigned at construction.
func (c *Conv2D) Role() Role { return c.role }

// Stride returns the convolution stride.
func (c *Conv2D) Stride() int { return c.stride }

// FanIn returns the per-output-unit input connectivity.
func (c *Conv2D) FanIn() int { return (c.inChan / c.groups) * c.kh * c.kw }

// FanOut returns the per-input-unit output connectivity.
func (c *Conv2D) FanOut() int { return (c.outChan / c.groups) * c.kh * c.kw }

// OutputShape returns the spatial output dimensions for a given input size.
func (c *Conv2D) OutputShape(inH, inW int) (outH, outW int) {
	outH = (inH+2*c.pad-c.kh)/c.stride + 1
	outW = (inW+2*c.pad-c.kw)/c.stride + 1
	return outH, outW
}

// Params lists the weight and, when present, the bias.
func (c *Conv2D) Params() []nn.Param {
	out := []nn.Param{{Name: "weight", Data: c.W, Trainable: true}}
	if c.B != nil {
		out = append(out, nn.Param{Name: "bias", Data: c.B, Trainable: true})
	}
	return out
}

// Forward computes the convolution. Input is [batch, inChan, H, W];
// a 3-D input is treated as a single sample.
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	var batch, height, width int
	switch len(input.Shape) {
	case 4:
		batch, height, width = input.Shape[0], input.Shape[2], input.Shape[3]
		if input.Shape[1] != c.inChan {
			return nil, fmt.Errorf("conv2d: expected %d input channels, got %d", c.inChan, input.Shape[1])
		}
	case 3:
		batch = 1
		height, width = input.Shape[1], input.Shape[2]
		if input.Shape[0] != c.inChan {
			return nil, fmt.Errorf("conv2d: expected %d input channels, got %d", c.inChan, input.Shape[0])
		}
	default:
		return nil, fmt.Errorf("conv2d: input must be 3D or 4D, got %v", input.Shape)
	}

	outH, outW := c.OutputShape(height, width)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("conv2d: input %dx%d too small for kernel %dx%d stride %d",
			height, width, c.kh, c.kw, c.stride)
	}
	output := tensor.New(batch, c.outChan, outH, outW)

	icpg := c.inChan / c.groups  // input channels per group
	ocpg := c.outChan / c.groups // output channels per group

	for b := 0; b < batch; b++ {
		for oc := 0; oc < c.outChan; oc++ {
			g := oc / ocpg
			sumBase := 0.0
			if c.B != nil {
				sumBase = c.B.Data[oc]
			}
			for y := 0; y < outH; y++ {
				for x := 0; x < outW; x++ {
					sum := sumBase
					for icl := 0; icl < icpg; icl++ {
						ic := g*icpg + icl
						for dy := 0; dy < c.kh; dy++ {
							iy := y*c.stride + dy - c.pad
							if iy < 0 || iy >= height {
								continue
							}
							for dx := 0; dx < c.kw; dx++ {
								ix := x*c.stride + dx - c.pad
								if ix < 0 || ix >= width {
									continue
								}
								wIdx := ((oc*icpg+icl)*c.kh+dy)*c.kw + dx
								inIdx := ((b*c.inChan+ic)*height+iy)*width + ix
								sum += input.Data[inIdx] * c.W.Data[wIdx]
							}
						}
					}
					output.Data[((b*c.outChan+oc)*outH+y)*outW+x] = sum
				}
			}
		}
	}
	return output, nil
}
