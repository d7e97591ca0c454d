// Package tensor provides the flat float32 NCHW tensors that flow through the
// editing pipeline. Arithmetic happens in float32; half precision only exists
// at the model boundary, see half.go.
package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Tensor is an n-dimensional float32 array in row-major (NCHW) layout.
type Tensor struct {
	Data  []float32
	Shape []int
}

// New allocates a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	return &Tensor{Data: make([]float32, size), Shape: shape}
}

// From wraps existing data in a tensor. The data is not copied; the caller
// must not reuse the slice.
func From(data []float32, shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	if size != len(data) {
		panic(fmt.Sprintf("tensor: shape %v does not fit %d elements", shape, len(data)))
	}
	return &Tensor{Data: data, Shape: shape}
}

// Numel returns the number of elements.
func (t *Tensor) Numel() int {
	n := 1
	for _, s := range t.Shape {
		n *= s
	}
	return n
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	d := make([]float32, len(t.Data))
	copy(d, t.Data)
	return &Tensor{Data: d, Shape: append([]int{}, t.Shape...)}
}

// SameShape reports whether both tensors have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Add returns a + b element-wise.
func Add(a, b *Tensor) *Tensor {
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out
}

// Sub returns a - b element-wise.
func Sub(a, b *Tensor) *Tensor {
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	return out
}

// Scale returns x * s.
func Scale(x *Tensor, s float32) *Tensor {
	out := New(x.Shape...)
	for i := range x.Data {
		out.Data[i] = x.Data[i] * s
	}
	return out
}

// Concat stacks tensors along the batch (first) dimension. All inputs must
// share the trailing dimensions.
func Concat(ts ...*Tensor) *Tensor {
	batch := 0
	for _, t := range ts {
		batch += t.Shape[0]
	}
	shape := append([]int{batch}, ts[0].Shape[1:]...)
	out := New(shape...)
	off := 0
	for _, t := range ts {
		copy(out.Data[off:], t.Data)
		off += len(t.Data)
	}
	return out
}

// Tile repeats a tensor n times along the batch dimension.
func Tile(t *Tensor, n int) *Tensor {
	shape := append([]int{t.Shape[0] * n}, t.Shape[1:]...)
	out := New(shape...)
	for i := 0; i < n; i++ {
		copy(out.Data[i*len(t.Data):], t.Data)
	}
	return out
}

// Chunk2 splits a tensor into two equal halves along the batch dimension.
// Used to separate the unconditional and conditional noise predictions after
// a joint forward pass.
func Chunk2(t *Tensor) (*Tensor, *Tensor) {
	if t.Shape[0]%2 != 0 {
		panic(fmt.Sprintf("tensor: cannot halve batch of %d", t.Shape[0]))
	}
	half := len(t.Data) / 2
	shape := append([]int{t.Shape[0] / 2}, t.Shape[1:]...)
	a := New(shape...)
	b := New(shape...)
	copy(a.Data, t.Data[:half])
	copy(b.Data, t.Data[half:])
	return a, b
}

// Randn fills a new tensor with standard Gaussian noise drawn from rng using
// the Box-Muller transform. Draw order is fixed, so a seeded rng yields
// bit-identical noise across runs.
func Randn(rng *rand.Rand, shape ...int) *Tensor {
	out := New(shape...)
	n := len(out.Data)
	for i := 0; i+1 < n; i += 2 {
		u1 := rng.Float64()
		for u1 == 0 {
			u1 = rng.Float64()
		}
		u2 := rng.Float64()
		r := math.Sqrt(-2 * math.Log(u1))
		theta := 2 * math.Pi * u2
		out.Data[i] = float32(r * math.Cos(theta))
		out.Data[i+1] = float32(r * math.Sin(theta))
	}
	if n%2 == 1 {
		u1 := rng.Float64()
		for u1 == 0 {
			u1 = rng.Float64()
		}
		u2 := rng.Float64()
		out.Data[n-1] = float32(math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2))
	}
	return out
}

// RandnLike draws Gaussian noise with the same shape as t.
func RandnLike(rng *rand.Rand, t *Tensor) *Tensor {
	return Randn(rng, t.Shape...)
}
