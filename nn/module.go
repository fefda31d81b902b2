package nn

import (
	"github.com/Bethhhh/ar1-go/tensor"
)

// Module defines a single layer/unit in the network.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// Param is one named parameter tensor owned by a leaf module. Trainable
// distinguishes learnable parameters from buffers such as running statistics.
type Param struct {
	Name      string
	Data      *tensor.Tensor
	Trainable bool
}

// Parametric is implemented by leaf modules that own parameter tensors.
type Parametric interface {
	Module
	Params() []Param
}

// Named pairs a module with its structural name inside a composite.
type Named struct {
	Name   string
	Module Module
}

// Composite is implemented by modules that own an ordered list of named
// children. Traversals (parameter listing, initialization, flattening)
// walk this tree instead of inspecting concrete types.
type Composite interface {
	Module
	Children() []Named
}

// Sequential chains multiple named Modules in order.
type Sequential struct {
	entries []Named
}

// NewSequential returns an empty Sequential.
func NewSequential() *Sequential {
	return &Sequential{}
}

// Append adds a named child to the end of the chain.
func (s *Sequential) Append(name string, m Module) {
	s.entries = append(s.entries, Named{Name: name, Module: m})
}

// Replace swaps the child with the given name, returning false if absent.
func (s *Sequential) Replace(name string, m Module) bool {
	for i := range s.entries {
		if s.entries[i].Name == name {
			s.entries[i].Module = m
			return true
		}
	}
	return false
}

// Len returns the number of children.
func (s *Sequential) Len() int { return len(s.entries) }

// Children returns the ordered named children.
func (s *Sequential) Children() []Named {
	return s.entries
}

// Forward applies each child in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, e := range s.entries {
		out, err = e.Module.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NamedParams lists every parameter reachable from root, depth-first, with
// "/"-joined structural paths. prefix names the root ("" for none).
func NamedParams(prefix string, root Module) []Param {
	var out []Param
	switch m := root.(type) {
	case Composite:
		for _, c := range m.Children() {
			out = append(out, NamedParams(join(prefix, c.Name), c.Module)...)
		}
	case Parametric:
		for _, p := range m.Params() {
			out = append(out, Param{
				Name:      join(prefix, p.Name),
				Data:      p.Data,
				Trainable: p.Trainable,
			})
		}
	}
	return out
}

// ParamCount sums parameter tensor sizes reachable from root.
func ParamCount(root Module, trainableOnly bool) int {
	total := 0
	for _, p := range NamedParams("", root) {
		if trainableOnly && !p.Trainable {
			continue
		}
		total += p.Data.Numel()
	}
	return total
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
