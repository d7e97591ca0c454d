// Package blend implements text-guided local image editing with blended
// latent diffusion. A batch of latents is denoised toward the prompt with
// classifier-free guidance while, at every step, the region outside the mask
// is replaced by a freshly noised copy of the source latent. The source is
// always re-noised from the original clean latent, never from the previous
// blended result; that is what keeps the unmasked region anchored to the
// source instead of drifting.
package blend

import (
	"errors"

	"github.com/JingyuanHe1222/blended-latent-diffusion/mask"
	"github.com/JingyuanHe1222/blended-latent-diffusion/tensor"
)

// LatentScale is the fixed scale matching the autoencoder's trained latent
// statistics.
const LatentScale = 0.18215

var (
	// ErrInvalidInput marks an unreadable or undecodable source image or
	// mask. Raised before any model computation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration marks an inconsistent request, e.g. a prompt count
	// that contradicts the batch size.
	ErrConfiguration = errors.New("invalid configuration")
)

// Blend gates a candidate latent batch against noised source latents:
// mask=1 pixels take the candidate, mask=0 pixels take the noised source.
// Both tensors must be [B, C, H, W] with H, W equal to the mask size.
func Blend(candidate, noisedSource *tensor.Tensor, m *mask.Mask) *tensor.Tensor {
	b, c := candidate.Shape[0], candidate.Shape[1]
	plane := m.H * m.W

	out := tensor.New(candidate.Shape...)
	for n := 0; n < b; n++ {
		for ch := 0; ch < c; ch++ {
			base := (n*c + ch) * plane
			for i := 0; i < plane; i++ {
				mv := m.Data[i]
				out.Data[base+i] = candidate.Data[base+i]*mv + noisedSource.Data[base+i]*(1-mv)
			}
		}
	}
	return out
}

// guide computes the classifier-free guidance estimate from a joint
// prediction over the [uncond; cond] batch:
//
//	guided = uncond + scale * (cond - uncond)
func guide(joint *tensor.Tensor, scale float32) *tensor.Tensor {
	uncond, cond := tensor.Chunk2(joint)
	out := tensor.New(uncond.Shape...)
	for i := range uncond.Data {
		out.Data[i] = uncond.Data[i] + scale*(cond.Data[i]-uncond.Data[i])
	}
	return out
}
