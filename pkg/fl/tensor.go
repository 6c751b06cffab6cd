package fl

import (
	"fmt"
	"math"
	"slices"
)

// NewTensor builds a zero tensor with the given shape.
func NewTensor(shape ...int) Tensor {
	return Tensor{
		Shape: slices.Clone(shape),
		Data:  make([]float64, elements(shape)),
	}
}

// Scalar builds a single-element tensor.
func Scalar(v float64) Tensor {
	return Tensor{Shape: []int{1}, Data: []float64{v}}
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}

	return n
}

// Len returns the number of scalars held by the tensor.
func (t Tensor) Len() int {
	return len(t.Data)
}

// Validate checks that the data length agrees with the shape.
func (t Tensor) Validate() error {
	if elements(t.Shape) != len(t.Data) {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", ErrInvalidShape, t.Shape, elements(t.Shape), len(t.Data))
	}

	return nil
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: slices.Clone(t.Shape),
		Data:  slices.Clone(t.Data),
	}
}

func (t Tensor) sameShape(o Tensor) bool {
	return slices.Equal(t.Shape, o.Shape) && len(t.Data) == len(o.Data)
}

// Finite reports whether the tensor holds no NaN or Inf values.
func (t Tensor) Finite() bool {
	for _, v := range t.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// Clone returns a deep copy. Readers of the global model always receive one.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	c := make(Params, len(p))
	for name, t := range p {
		c[name] = t.Clone()
	}

	return c
}

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// NumParams is the total number of scalars across all tensors.
func (p Params) NumParams() int {
	n := 0
	for _, t := range p {
		n += t.Len()
	}

	return n
}

func (p Params) Finite() bool {
	for _, t := range p {
		if !t.Finite() {
			return false
		}
	}

	return true
}

// CheckSchema verifies that o has exactly the same names and shapes as p.
func (p Params) CheckSchema(o Params) error {
	if len(p) != len(o) {
		return fmt.Errorf("%w: %d parameters, got %d", ErrSchemaMismatch, len(p), len(o))
	}
	for name, t := range p {
		ot, ok := o[name]
		if !ok {
			return fmt.Errorf("%w: missing parameter %q", ErrSchemaMismatch, name)
		}
		if !t.sameShape(ot) {
			return fmt.Errorf("%w: parameter %q has shape %v, got %v", ErrSchemaMismatch, name, t.Shape, ot.Shape)
		}
	}

	return nil
}

func (m Metrics) Clone() Metrics {
	if m == nil {
		return nil
	}
	c := make(Metrics, len(m))
	for k, v := range m {
		c[k] = v
	}

	return c
}
