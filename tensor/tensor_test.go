package tensor

import "testing"

func TestNewShape(t *testing.T) {
	a := New(2, 3, 4)
	if len(a.Data) != 24 {
		t.Fatalf("expected 24 elements, got %d", len(a.Data))
	}
	if a.Numel() != 24 {
		t.Fatalf("Numel = %d, want 24", a.Numel())
	}
}

func TestAtSetRoundTrip(t *testing.T) {
	a := New(2, 2, 3, 3)
	a.Set(7.5, 1, 0, 2, 1)
	if got := a.At(1, 0, 2, 1); got != 7.5 {
		t.Fatalf("At = %f, want 7.5", got)
	}
	if got := a.At(0, 0, 0, 0); got != 0 {
		t.Fatalf("untouched element = %f, want 0", got)
	}
}

func TestAtPanicsOutOfBounds(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-bounds index")
		}
	}()
	a := New(2, 2)
	a.At(2, 0)
}

func TestReshape(t *testing.T) {
	a := New(2, 6)
	for i := range a.Data {
		a.Data[i] = float64(i)
	}
	b, err := a.Reshape(3, 4)
	if err != nil {
		t.Fatalf("reshape error: %v", err)
	}
	if b.Shape[0] != 3 || b.Shape[1] != 4 {
		t.Fatalf("reshape shape = %v", b.Shape)
	}
	if b.Data[5] != 5 {
		t.Fatalf("reshape should preserve element order")
	}
	if _, err := a.Reshape(5, 5); err == nil {
		t.Fatalf("expected error on element count mismatch")
	}
}

func TestConcatBatchAxis(t *testing.T) {
	a := New(2, 3)
	b := New(1, 3)
	for i := range a.Data {
		a.Data[i] = float64(i)
	}
	for i := range b.Data {
		b.Data[i] = 100 + float64(i)
	}
	c, err := Concat(a, b)
	if err != nil {
		t.Fatalf("concat error: %v", err)
	}
	if c.Shape[0] != 3 || c.Shape[1] != 3 {
		t.Fatalf("concat shape = %v", c.Shape)
	}
	if c.Data[6] != 100 {
		t.Fatalf("second operand should follow first, got %f", c.Data[6])
	}
}

func TestConcatZeroBatch(t *testing.T) {
	a := New(2, 4)
	for i := range a.Data {
		a.Data[i] = float64(i)
	}
	empty := New(0, 4)
	c, err := Concat(a, empty)
	if err != nil {
		t.Fatalf("concat error: %v", err)
	}
	if c.Shape[0] != 2 {
		t.Fatalf("zero-batch concat changed batch size: %v", c.Shape)
	}
	for i := range a.Data {
		if c.Data[i] != a.Data[i] {
			t.Fatalf("zero-batch concat changed data at %d", i)
		}
	}
}

func TestConcatShapeMismatch(t *testing.T) {
	if _, err := Concat(New(2, 3), New(2, 4)); err == nil {
		t.Fatalf("expected error on trailing-dimension mismatch")
	}
}

func TestArgMax(t *testing.T) {
	a := NewWithData([]float64{0.1, 2.5, -1, 2.4})
	if got := a.ArgMax(); got != 1 {
		t.Fatalf("ArgMax = %d, want 1", got)
	}
}
