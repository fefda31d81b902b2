package tensor

import "fmt"

// Tensor is a simple n-D array backed by a flat []float64.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zero-filled Tensor of the given shape.
func New(shape ...int) *Tensor {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return &Tensor{
		Data:  make([]float64, total),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from existing data slice.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// Numel returns the total number of elements.
func (t *Tensor) Numel() int {
	total := 1
	for _, d := range t.Shape {
		total *= d
	}
	return total
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Reshape returns a copy of t holding the same elements in a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	total := 1
	for _, d := range shape {
		total *= d
	}
	if total != len(t.Data) {
		return nil, fmt.Errorf("reshape: %v has %d elements, want %d for %v", t.Shape, len(t.Data), total, shape)
	}
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), shape...),
	}, nil
}

// Concat concatenates a and b along axis 0. All trailing dimensions must
// match. A zero-length operand yields a copy of the other operand.
func Concat(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) == 0 || len(b.Shape) == 0 {
		return nil, fmt.Errorf("concat: scalar operands not supported")
	}
	if a.Shape[0] == 0 {
		return b.Clone(), nil
	}
	if b.Shape[0] == 0 {
		return a.Clone(), nil
	}
	if len(a.Shape) != len(b.Shape) {
		return nil, fmt.Errorf("concat: rank mismatch %v vs %v", a.Shape, b.Shape)
	}
	for i := 1; i < len(a.Shape); i++ {
		if a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("concat: shape mismatch %v vs %v", a.Shape, b.Shape)
		}
	}
	shape := append([]int(nil), a.Shape...)
	shape[0] = a.Shape[0] + b.Shape[0]
	out := New(shape...)
	copy(out.Data, a.Data)
	copy(out.Data[len(a.Data):], b.Data)
	return out, nil
}

// ArgMax returns the index of the largest element of a 1-D tensor.
func (t *Tensor) ArgMax() int {
	best := 0
	for i, v := range t.Data {
		if v > t.Data[best] {
			best = i
		}
	}
	return best
}

// At returns the element at the given indices.
// For a 4D tensor [a, b, c, d], At(i, j, k, l) returns the element at position [i][j][k][l].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.index("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.index("Set", indices)] = value
}

func (t *Tensor) index(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}
