package mobilenet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bethhhh/ar1-go/nn/layers"
	"github.com/Bethhhh/ar1-go/tensor"
)

func TestSplitPartition(t *testing.T) {
	net, err := NewSplit(-1, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLatentLayerNum, net.LatentLayerNum)

	// The flattened 1.0x network has 28 layers once the base classifier is
	// discarded: stem, 26 separable halves, final pool.
	assert.Equal(t, 21, net.Lat.Len())
	assert.Equal(t, 7, net.End.Len())

	// The replacement pool belongs to the end section.
	endChildren := net.End.Children()
	pool, ok := endChildren[len(endChildren)-1].Module.(*layers.AvgPool2D)
	require.True(t, ok, "end section should finish with the pool")
	assert.Equal(t, 4, pool.Kernel())

	// The fresh classifier is bias-free.
	assert.Equal(t, 50, net.Output.FanOut())
	assert.Equal(t, 1024, net.Output.FanIn())
	assert.Nil(t, net.Output.B)
}

func TestSplitCutPlacement(t *testing.T) {
	early, err := NewSplit(3, Config{})
	require.NoError(t, err)
	assert.Equal(t, 4, early.Lat.Len())
	assert.Equal(t, 24, early.End.Len())

	_, err = NewSplit(64, Config{})
	assert.Error(t, err, "cut index beyond the layer list")
}

func TestSplitIndexZero(t *testing.T) {
	// Index 0 is a legal cut keeping only the stem in the latent section;
	// it must not fall back to the default.
	net, err := NewSplit(0, Config{})
	require.NoError(t, err)
	assert.Equal(t, 0, net.LatentLayerNum)
	assert.Equal(t, 1, net.Lat.Len())
	assert.Equal(t, 27, net.End.Len())
}

func TestSplitForwardShape(t *testing.T) {
	net, err := NewSplit(-1, Config{Seed: 11})
	require.NoError(t, err)

	logits, err := net.Forward(tensor.New(1, 3, 128, 128))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 50}, logits.Shape)
}

func TestSplitZeroInjectionMatchesPlainForward(t *testing.T) {
	net, err := NewSplit(-1, Config{Seed: 11})
	require.NoError(t, err)

	x := tensor.New(1, 3, 128, 128)
	for i := range x.Data {
		x.Data[i] = float64(i%17) / 17.0
	}

	plain, _, err := net.ForwardLatent(x, nil, false)
	require.NoError(t, err)

	_, acts, err := net.ForwardLatent(x, nil, true)
	require.NoError(t, err)
	require.NotNil(t, acts)

	empty := tensor.New(0, acts.Shape[1], acts.Shape[2], acts.Shape[3])
	injected, _, err := net.ForwardLatent(x, empty, false)
	require.NoError(t, err)

	require.Equal(t, plain.Shape, injected.Shape)
	for i := range plain.Data {
		assert.InDelta(t, plain.Data[i], injected.Data[i], 1e-12)
	}
}

func TestSplitInjectionExtendsBatch(t *testing.T) {
	net, err := NewSplit(-1, Config{Seed: 11})
	require.NoError(t, err)

	x := tensor.New(1, 3, 128, 128)
	for i := range x.Data {
		x.Data[i] = float64(i%13) / 13.0
	}
	other := tensor.New(1, 3, 128, 128)
	for i := range other.Data {
		other.Data[i] = float64(i%7) / 7.0
	}

	plain, _, err := net.ForwardLatent(x, nil, false)
	require.NoError(t, err)

	_, otherActs, err := net.ForwardLatent(other, nil, true)
	require.NoError(t, err)

	logits, acts, err := net.ForwardLatent(x, otherActs, true)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 50}, logits.Shape)

	// The injected batch must not change the fresh sample's logits or its
	// cached activations.
	for i := 0; i < 50; i++ {
		assert.InDelta(t, plain.Data[i], logits.Data[i], 1e-9)
	}
	assert.Equal(t, 1, acts.Shape[0])
}
