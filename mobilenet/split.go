package mobilenet

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/Bethhhh/ar1-go/nn"
	"github.com/Bethhhh/ar1-go/nn/layers"
	"github.com/Bethhhh/ar1-go/tensor"
)

// SplitMobileNet is a MobileNet repartitioned into a frozen latent front and
// a trainable end section, with a fresh bias-free 50-way classifier. The cut
// lets stored latent activations be replayed into the end section alongside
// fresh inputs.
type SplitMobileNet struct {
	Lat    *nn.Sequential
	End    *nn.Sequential
	Output *layers.Linear

	flatten        *layers.Flatten
	LatentLayerNum int
}

// DefaultLatentLayerNum is the layer index at which the network is cut when
// none is given.
const DefaultLatentLayerNum = 20

// NewSplit builds a 1.0x MobileNet for 128x128 inputs, flattens it into a
// single layer list and cuts it after latentLayerNum. Layers with index at
// most latentLayerNum form the latent section; the rest, including the final
// pool, form the end section. Index 0 cuts after the stem alone; a negative
// latentLayerNum selects the default cut.
//
// The base network's own classifier is discarded and replaced by a bias-free
// Linear(1024, 50).
func NewSplit(latentLayerNum int, cfg Config) (*SplitMobileNet, error) {
	if latentLayerNum < 0 {
		latentLayerNum = DefaultLatentLayerNum
	}
	base, err := MobileNetW1(cfg)
	if err != nil {
		return nil, err
	}
	base.Features.Replace("final_pool", layers.NewAvgPool2D(4, 0))

	var leaves []nn.Module
	flattenLeaves(base.Features, &leaves)
	leaves = append(leaves, base.Output)
	leaves = leaves[:len(leaves)-1]

	if latentLayerNum >= len(leaves) {
		return nil, errors.Errorf("latent layer index %d out of range, have %d layers", latentLayerNum, len(leaves))
	}

	lat := nn.NewSequential()
	end := nn.NewSequential()
	for i, m := range leaves {
		name := strconv.Itoa(i)
		if i <= latentLayerNum {
			lat.Append(name, m)
		} else {
			end.Append(name, m)
		}
	}

	net := &SplitMobileNet{
		Lat:            lat,
		End:            end,
		Output:         layers.NewLinear(1024, 50, false, layers.RoleClassifier),
		flatten:        layers.NewFlatten(),
		LatentLayerNum: latentLayerNum,
	}
	layers.Init(net.Output, cfg.Seed)
	return net, nil
}

// flattenLeaves linearizes a module tree into a flat layer list. Only
// Sequential containers are descended into; separable units are expanded
// into their depthwise and pointwise blocks, everything else is a leaf.
func flattenLeaves(m nn.Module, out *[]nn.Module) {
	switch v := m.(type) {
	case *nn.Sequential:
		for _, child := range v.Children() {
			flattenLeaves(child.Module, out)
		}
	case *DwsConvBlock:
		*out = append(*out, v.DwConv, v.PwConv)
	default:
		*out = append(*out, m)
	}
}

// Children returns the latent section, the end section and the classifier.
func (m *SplitMobileNet) Children() []nn.Named {
	return []nn.Named{
		{Name: "lat_features", Module: m.Lat},
		{Name: "end_features", Module: m.End},
		{Name: "output", Module: m.Output},
	}
}

// Forward runs the whole repartitioned network on [batch, 3, 128, 128] input
// and returns [batch, 50] class scores.
func (m *SplitMobileNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	logits, _, err := m.ForwardLatent(x, nil, false)
	return logits, err
}

// ForwardLatent runs the network while optionally injecting stored latent
// activations. The input batch is pushed through the latent section, the
// injected batch is concatenated after it along the batch axis, and the
// combined batch continues through the end section and the classifier.
// When returnActs is set the pre-concatenation activations of the fresh
// batch are also returned, for caching.
func (m *SplitMobileNet) ForwardLatent(x, latentInput *tensor.Tensor, returnActs bool) (*tensor.Tensor, *tensor.Tensor, error) {
	origActs, err := m.Lat.Forward(x)
	if err != nil {
		return nil, nil, err
	}
	combined := origActs
	if latentInput != nil {
		combined, err = tensor.Concat(origActs, latentInput)
		if err != nil {
			return nil, nil, errors.Wrap(err, "injecting latent activations")
		}
	}
	out, err := m.End.Forward(combined)
	if err != nil {
		return nil, nil, err
	}
	out, err = m.flatten.Forward(out)
	if err != nil {
		return nil, nil, err
	}
	logits, err := m.Output.Forward(out)
	if err != nil {
		return nil, nil, err
	}
	if !returnActs {
		return logits, nil, nil
	}
	return logits, origActs.Clone(), nil
}
