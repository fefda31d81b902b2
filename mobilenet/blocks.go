package mobilenet

import (
	"github.com/Bethhhh/ar1-go/nn"
	"github.com/Bethhhh/ar1-go/nn/layers"
	"github.com/Bethhhh/ar1-go/tensor"
)

// ConvBlock is a convolution followed by batch normalization and ReLU, the
// standard unit every MobileNet layer is assembled from. The convolution
// carries no bias; the normalization provides the shift.
type ConvBlock struct {
	Conv  *layers.Conv2D
	BN    *layers.BatchNorm2D
	Activ *layers.ReLU
}

func newConvBlock(spec layers.Conv2DSpec) (*ConvBlock, error) {
	conv, err := layers.NewConv2D(spec)
	if err != nil {
		return nil, err
	}
	return &ConvBlock{
		Conv:  conv,
		BN:    layers.NewBatchNorm2D(spec.OutChannels),
		Activ: layers.NewReLU(),
	}, nil
}

// Conv3x3Block builds a 3x3 convolution block with padding 1.
func Conv3x3Block(inChannels, outChannels, stride int, role layers.Role) (*ConvBlock, error) {
	return newConvBlock(layers.Conv2DSpec{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelH:     3,
		KernelW:     3,
		Stride:      stride,
		Padding:     1,
		Role:        role,
	})
}

// Conv1x1Block builds a 1x1 channel-mixing convolution block.
func Conv1x1Block(inChannels, outChannels int, role layers.Role) (*ConvBlock, error) {
	return newConvBlock(layers.Conv2DSpec{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelH:     1,
		KernelW:     1,
		Role:        role,
	})
}

// DwConv3x3Block builds a depthwise 3x3 convolution block: one filter per
// channel (groups = channels), padding 1.
func DwConv3x3Block(channels, stride int) (*ConvBlock, error) {
	return newConvBlock(layers.Conv2DSpec{
		InChannels:  channels,
		OutChannels: channels,
		KernelH:     3,
		KernelW:     3,
		Stride:      stride,
		Padding:     1,
		Groups:      channels,
		Role:        layers.RoleDepthwise,
	})
}

// Children returns conv, bn and activation in forward order.
func (b *ConvBlock) Children() []nn.Named {
	return []nn.Named{
		{Name: "conv", Module: b.Conv},
		{Name: "bn", Module: b.BN},
		{Name: "activ", Module: b.Activ},
	}
}

// Forward applies conv, normalization and activation.
func (b *ConvBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := b.Conv.Forward(x)
	if err != nil {
		return nil, err
	}
	x, err = b.BN.Forward(x)
	if err != nil {
		return nil, err
	}
	return b.Activ.Forward(x)
}

// DwsConvBlock is a depthwise separable convolution unit: a depthwise 3x3
// block followed by a pointwise 1x1 block.
type DwsConvBlock struct {
	DwConv *ConvBlock
	PwConv *ConvBlock
}

// NewDwsConvBlock builds a separable unit mapping inChannels to outChannels
// with the given stride on the depthwise stage.
func NewDwsConvBlock(inChannels, outChannels, stride int) (*DwsConvBlock, error) {
	dw, err := DwConv3x3Block(inChannels, stride)
	if err != nil {
		return nil, err
	}
	pw, err := Conv1x1Block(inChannels, outChannels, layers.RolePointwise)
	if err != nil {
		return nil, err
	}
	return &DwsConvBlock{DwConv: dw, PwConv: pw}, nil
}

// Children returns the depthwise and pointwise blocks in forward order.
func (b *DwsConvBlock) Children() []nn.Named {
	return []nn.Named{
		{Name: "dw_conv", Module: b.DwConv},
		{Name: "pw_conv", Module: b.PwConv},
	}
}

// Forward applies the depthwise then the pointwise block.
func (b *DwsConvBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := b.DwConv.Forward(x)
	if err != nil {
		return nil, err
	}
	return b.PwConv.Forward(x)
}
