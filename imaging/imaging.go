// Package imaging covers the pixel-space edges of the pipeline: decoding and
// resizing the source image, converting between images and NCHW tensors, and
// assembling the output grid.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"

	// Standard decoders. WebP comes from x/image.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/JingyuanHe1222/blended-latent-diffusion/tensor"
)

// Load reads and decodes an image from a file path.
func Load(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Decode decodes an image from a reader (PNG, JPEG or WebP).
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Resize scales an image to w x h with bilinear interpolation.
func Resize(img image.Image, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	return out
}

// ToTensor converts an image to a [1, 3, H, W] tensor with values in [-1, 1],
// the input range of the autoencoder.
func ToTensor(img image.Image) *tensor.Tensor {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	data := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// RGBA returns 16-bit values; use the high byte.
			data[0*h*w+y*w+x] = float32(r>>8)/127.5 - 1
			data[1*h*w+y*w+x] = float32(g>>8)/127.5 - 1
			data[2*h*w+y*w+x] = float32(b>>8)/127.5 - 1
		}
	}
	return tensor.From(data, 1, 3, h, w)
}

// FromTensor converts a decoded [B, 3, H, W] tensor in [-1, 1] back into 8-bit
// RGB images, one per batch element.
func FromTensor(t *tensor.Tensor) []image.Image {
	b, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	plane := h * w

	imgs := make([]image.Image, b)
	for n := 0; n < b; n++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		base := n * c * plane
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := img.PixOffset(x, y)
				img.Pix[i+0] = toByte(t.Data[base+0*plane+y*w+x])
				img.Pix[i+1] = toByte(t.Data[base+1*plane+y*w+x])
				img.Pix[i+2] = toByte(t.Data[base+2*plane+y*w+x])
				img.Pix[i+3] = 0xff
			}
		}
		imgs[n] = img
	}
	return imgs
}

// toByte maps [-1, 1] to [0, 255] with clamping.
func toByte(v float32) uint8 {
	scaled := (v/2 + 0.5) * 255
	if scaled <= 0 {
		return 0
	}
	if scaled >= 255 {
		return 255
	}
	return uint8(scaled + 0.5)
}

// ConcatHorizontal lays out a batch of equally sized images side by side in
// one image.
func ConcatHorizontal(imgs []image.Image) image.Image {
	if len(imgs) == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	w := imgs[0].Bounds().Dx()
	h := imgs[0].Bounds().Dy()

	out := image.NewRGBA(image.Rect(0, 0, w*len(imgs), h))
	for i, img := range imgs {
		r := image.Rect(i*w, 0, (i+1)*w, h)
		draw.Draw(out, r, img, img.Bounds().Min, draw.Src)
	}
	return out
}
