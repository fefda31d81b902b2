package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bethhhh/ar1-go/tensor"
)

// addN shifts every element by a constant, to make ordering observable.
type addN struct{ n float64 }

func (a *addN) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x.Clone()
	for i := range out.Data {
		out.Data[i] += a.n
	}
	return out, nil
}

// scale doubles as a parametric leaf for traversal tests.
type scale struct{ w *tensor.Tensor }

func newScale(v float64) *scale {
	t := tensor.New(1)
	t.Data[0] = v
	return &scale{w: t}
}

func (s *scale) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x.Clone()
	for i := range out.Data {
		out.Data[i] *= s.w.Data[0]
	}
	return out, nil
}

func (s *scale) Params() []Param {
	return []Param{
		{Name: "weight", Data: s.w, Trainable: true},
		{Name: "running_mean", Data: tensor.New(1), Trainable: false},
	}
}

func TestSequential_ForwardOrder(t *testing.T) {
	seq := NewSequential()
	seq.Append("add", &addN{n: 1})
	seq.Append("scale", newScale(10))

	out, err := seq.Forward(tensor.NewWithData([]float64{2}))
	require.NoError(t, err)
	// (2+1)*10, not 2*10+1
	assert.Equal(t, 30.0, out.Data[0])
}

func TestSequential_Replace(t *testing.T) {
	seq := NewSequential()
	seq.Append("add", &addN{n: 1})

	assert.True(t, seq.Replace("add", &addN{n: 5}))
	assert.False(t, seq.Replace("missing", &addN{n: 0}))

	out, err := seq.Forward(tensor.NewWithData([]float64{0}))
	require.NoError(t, err)
	assert.Equal(t, 5.0, out.Data[0])
}

func TestNamedParams_Paths(t *testing.T) {
	inner := NewSequential()
	inner.Append("unit1", newScale(1))

	root := NewSequential()
	root.Append("stage1", inner)
	root.Append("output", newScale(2))

	params := NamedParams("", root)
	require.Len(t, params, 4)

	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "stage1/unit1/weight")
	assert.Contains(t, names, "output/weight")
	assert.Contains(t, names, "output/running_mean")
}

func TestParamCount_TrainableOnly(t *testing.T) {
	seq := NewSequential()
	seq.Append("a", newScale(1))
	seq.Append("b", newScale(1))

	assert.Equal(t, 4, ParamCount(seq, false))
	assert.Equal(t, 2, ParamCount(seq, true))
}

func TestSoftmax_RowsSumToOne(t *testing.T) {
	logits := tensor.New(2, 3)
	copy(logits.Data, []float64{1, 2, 3, 1000, 1000, 1000})

	probs := Softmax(logits)
	for r := 0; r < 2; r++ {
		sum := 0.0
		for c := 0; c < 3; c++ {
			sum += probs.At(r, c)
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
	// Large uniform logits must not overflow.
	assert.False(t, math.IsNaN(probs.At(1, 0)))
	assert.InDelta(t, 1.0/3.0, probs.At(1, 0), 1e-9)

	assert.Greater(t, probs.At(0, 2), probs.At(0, 1))
}
