// Package mobilenet implements the MobileNet and FD-MobileNet families of
// depthwise-separable convolution networks, together with a latent/end
// repartitioning of a pretrained network used for replay-based continual
// learning.
//
// MobileNet follows 'MobileNets: Efficient Convolutional Neural Networks for
// Mobile Vision Applications' (https://arxiv.org/abs/1704.04861) and
// FD-MobileNet follows 'FD-MobileNet: Improved MobileNet with A Fast
// Downsampling Strategy' (https://arxiv.org/abs/1802.03750).
package mobilenet

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/Bethhhh/ar1-go/modelstore"
	"github.com/Bethhhh/ar1-go/nn"
	"github.com/Bethhhh/ar1-go/nn/layers"
	"github.com/Bethhhh/ar1-go/tensor"
)

// Config carries the construction parameters shared by every variant.
// The zero value selects 3 input channels, 224x224 inputs and 1000 classes.
type Config struct {
	InChannels int
	InSize     [2]int
	NumClasses int
	Seed       uint64

	// Pretrained loads stored parameters for ModelName from Root after
	// construction. Root defaults to the user-local model store.
	Pretrained bool
	ModelName  string
	Root       string
}

func (c Config) withDefaults() Config {
	if c.InChannels == 0 {
		c.InChannels = 3
	}
	if c.InSize == [2]int{} {
		c.InSize = [2]int{224, 224}
	}
	if c.NumClasses == 0 {
		c.NumClasses = 1000
	}
	return c
}

// MobileNet is the assembled network: a strided stem, stages of separable
// units, global average pooling and a linear classifier.
type MobileNet struct {
	Features *nn.Sequential
	Output   *layers.Linear

	flatten    *layers.Flatten
	InSize     [2]int
	NumClasses int
}

// New assembles a MobileNet from a channel table. channels[0][0] is the stem
// width; each remaining entry describes one stage of separable units. The
// first unit of stage i downsamples when i is not the first stage or
// firstStageStride is set. An empty channel table panics; a single-entry
// table degenerates to stem, pool and classifier.
func New(channels [][]int, firstStageStride bool, cfg Config) (*MobileNet, error) {
	cfg = cfg.withDefaults()

	features := nn.NewSequential()
	initBlockChannels := channels[0][0]
	stem, err := Conv3x3Block(cfg.InChannels, initBlockChannels, 2, layers.RoleStem)
	if err != nil {
		return nil, err
	}
	features.Append("init_block", stem)

	inChannels := initBlockChannels
	for i, stageChannels := range channels[1:] {
		stage := nn.NewSequential()
		for j, outChannels := range stageChannels {
			stride := 1
			if j == 0 && (i != 0 || firstStageStride) {
				stride = 2
			}
			unit, err := NewDwsConvBlock(inChannels, outChannels, stride)
			if err != nil {
				return nil, err
			}
			stage.Append(fmt.Sprintf("unit%d", j+1), unit)
			inChannels = outChannels
		}
		features.Append(fmt.Sprintf("stage%d", i+1), stage)
	}
	features.Append("final_pool", layers.NewAvgPool2D(7, 1))

	net := &MobileNet{
		Features:   features,
		Output:     layers.NewLinear(inChannels, cfg.NumClasses, true, layers.RoleClassifier),
		flatten:    layers.NewFlatten(),
		InSize:     cfg.InSize,
		NumClasses: cfg.NumClasses,
	}
	layers.Init(net, cfg.Seed)
	return net, nil
}

// Children returns the feature extractor and the classifier.
func (m *MobileNet) Children() []nn.Named {
	return []nn.Named{
		{Name: "features", Module: m.Features},
		{Name: "output", Module: m.Output},
	}
}

// Forward maps [batch, channels, H, W] to unnormalized class scores
// [batch, numClasses].
func (m *MobileNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := m.Features.Forward(x)
	if err != nil {
		return nil, err
	}
	x, err = m.flatten.Forward(x)
	if err != nil {
		return nil, err
	}
	return m.Output.Forward(x)
}

// Get creates a MobileNet ("orig") or FD-MobileNet ("fd") with the given
// width scale. Any other version tag is a configuration error. When
// cfg.Pretrained is set, stored parameters for cfg.ModelName are loaded
// from cfg.Root.
func Get(version string, widthScale float64, cfg Config) (*MobileNet, error) {
	var channels [][]int
	var firstStageStride bool

	switch version {
	case "orig":
		channels = [][]int{{32}, {64}, {128, 128}, {256, 256}, {512, 512, 512, 512, 512, 512}, {1024, 1024}}
		firstStageStride = false
	case "fd":
		channels = [][]int{{32}, {64}, {128, 128}, {256, 256}, {512, 512, 512, 512, 512, 1024}}
		firstStageStride = true
	default:
		return nil, errors.Errorf("unsupported MobileNet version %q", version)
	}

	if widthScale != 1.0 {
		for i, stage := range channels {
			for j, c := range stage {
				channels[i][j] = int(float64(c) * widthScale)
			}
		}
	}

	net, err := New(channels, firstStageStride, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Pretrained {
		if cfg.ModelName == "" {
			return nil, errors.New("model name must be set to load pretrained weights")
		}
		root := cfg.Root
		if root == "" {
			root, err = modelstore.DefaultRoot()
			if err != nil {
				return nil, err
			}
		}
		if err := modelstore.LoadInto(net, cfg.ModelName, root); err != nil {
			return nil, errors.Wrapf(err, "loading pretrained model %q", cfg.ModelName)
		}
	}
	return net, nil
}

func getNamed(version string, widthScale float64, modelName string, cfg Config) (*MobileNet, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = modelName
	}
	return Get(version, widthScale, cfg)
}

// MobileNetW1 builds the 1.0 MobileNet-224 model.
func MobileNetW1(cfg Config) (*MobileNet, error) {
	return getNamed("orig", 1.0, "mobilenet_w1", cfg)
}

// MobileNetW3d4 builds the 0.75 MobileNet-224 model.
func MobileNetW3d4(cfg Config) (*MobileNet, error) {
	return getNamed("orig", 0.75, "mobilenet_w3d4", cfg)
}

// MobileNetWd2 builds the 0.5 MobileNet-224 model.
func MobileNetWd2(cfg Config) (*MobileNet, error) {
	return getNamed("orig", 0.5, "mobilenet_wd2", cfg)
}

// MobileNetWd4 builds the 0.25 MobileNet-224 model.
func MobileNetWd4(cfg Config) (*MobileNet, error) {
	return getNamed("orig", 0.25, "mobilenet_wd4", cfg)
}

// FDMobileNetW1 builds the FD-MobileNet 1.0x model.
func FDMobileNetW1(cfg Config) (*MobileNet, error) {
	return getNamed("fd", 1.0, "fdmobilenet_w1", cfg)
}

// FDMobileNetW3d4 builds the FD-MobileNet 0.75x model.
func FDMobileNetW3d4(cfg Config) (*MobileNet, error) {
	return getNamed("fd", 0.75, "fdmobilenet_w3d4", cfg)
}

// FDMobileNetWd2 builds the FD-MobileNet 0.5x model.
func FDMobileNetWd2(cfg Config) (*MobileNet, error) {
	return getNamed("fd", 0.5, "fdmobilenet_wd2", cfg)
}

// FDMobileNetWd4 builds the FD-MobileNet 0.25x model.
func FDMobileNetWd4(cfg Config) (*MobileNet, error) {
	return getNamed("fd", 0.25, "fdmobilenet_wd4", cfg)
}

// MobileNetV1Core50 builds the 1.0 MobileNet adapted to CORe50: a 4x4 final
// pool for 128x128 inputs and a bias-free 50-way classifier.
func MobileNetV1Core50(cfg Config) (*MobileNet, error) {
	net, err := MobileNetW1(cfg)
	if err != nil {
		return nil, err
	}
	net.Features.Replace("final_pool", layers.NewAvgPool2D(4, 0))
	net.Output = layers.NewLinear(1024, 50, false, layers.RoleClassifier)
	net.NumClasses = 50
	net.InSize = [2]int{128, 128}
	layers.Init(net.Output, cfg.Seed)
	return net, nil
}
