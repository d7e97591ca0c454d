// Package mask handles the latent-resolution binary mask that gates the
// blend: 1 means the pixel takes generated content, 0 pins it to the noised
// source. Morphology is pure; the original mask is never mutated.
package mask

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/JingyuanHe1222/blended-latent-diffusion/imaging"
	"github.com/JingyuanHe1222/blended-latent-diffusion/tensor"
)

// DefaultLatentSize is the mask resolution for 512x512 generation (image/8).
const DefaultLatentSize = 64

// Mask is a binary 2D array at latent resolution. Data holds exactly the
// values 0 and 1.
type Mask struct {
	Data []float32
	W, H int
}

// New returns an all-zero mask.
func New(w, h int) *Mask {
	return &Mask{Data: make([]float32, w*h), W: w, H: h}
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := New(m.W, m.H)
	copy(out.Data, m.Data)
	return out
}

// Load reads a mask image, converts it to grayscale at the given latent
// resolution (nearest-neighbor, no interpolated gray values) and thresholds
// it at 0.5.
func Load(path string, w, h int) (*Mask, error) {
	img, err := imaging.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load mask: %w", err)
	}
	return FromImage(img, w, h), nil
}

// FromImage builds a thresholded latent mask from any image.
func FromImage(img image.Image, w, h int) *Mask {
	small := image.NewGray(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	m := New(w, h)
	for i, px := range small.Pix {
		m.Data[i] = float32(px) / 255
	}
	m.Threshold()
	return m
}

// Threshold snaps every value to {0,1} at the 0.5 boundary. Idempotent:
// applying it to an already binary mask changes nothing.
func (m *Mask) Threshold() {
	for i, v := range m.Data {
		if v < 0.5 {
			m.Data[i] = 0
		} else {
			m.Data[i] = 1
		}
	}
}

// At returns the mask value at (x, y).
func (m *Mask) At(x, y int) float32 {
	return m.Data[y*m.W+x]
}

// Area returns the number of active (1) pixels.
func (m *Mask) Area() int {
	n := 0
	for _, v := range m.Data {
		if v >= 0.5 {
			n++
		}
	}
	return n
}

// ToTensor expands the mask to a [1, 1, H, W] tensor for element-wise
// blending against a latent batch.
func (m *Mask) ToTensor() *tensor.Tensor {
	d := make([]float32, len(m.Data))
	copy(d, m.Data)
	return tensor.From(d, 1, 1, m.H, m.W)
}
