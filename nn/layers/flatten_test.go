package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bethhhh/ar1-go/tensor"
)

func TestFlatten_KeepsBatchAxis(t *testing.T) {
	f := NewFlatten()

	input := tensor.New(2, 3, 4, 4)
	for i := range input.Data {
		input.Data[i] = float64(i)
	}

	output, err := f.Forward(input)
	require.NoError(t, err)
	require.Equal(t, []int{2, 48}, output.Shape)
	assert.Equal(t, input.Data, output.Data)
}

func TestFlatten_AlreadyFlat(t *testing.T) {
	f := NewFlatten()
	output, err := f.Forward(tensor.New(5, 10))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 10}, output.Shape)
}

func TestFlatten_RejectsVector(t *testing.T) {
	f := NewFlatten()
	_, err := f.Forward(tensor.New(10))
	assert.Error(t, err)
}
