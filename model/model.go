// Package model defines the capabilities the editing pipeline consumes from
// a frozen text-to-image latent diffusion model, and loads them from an ONNX
// Runtime backend when built with the ort tag. The pipeline never talks to a
// runtime directly; it only sees these interfaces, so tests substitute
// doubles.
package model

import (
	"context"

	"github.com/JingyuanHe1222/blended-latent-diffusion/tensor"
)

// TextEncoder turns prompts into embedding sequences.
type TextEncoder interface {
	// EncodePrompts returns a [len(prompts), seq, dim] embedding tensor. All
	// prompts are padded/truncated to the same tokenized length.
	EncodePrompts(ctx context.Context, prompts []string) (*tensor.Tensor, error)
}

// NoisePredictor is the denoising network.
type NoisePredictor interface {
	// PredictNoise estimates the noise in latents at the given timestep,
	// conditioned on embeddings. Latents and embeddings must share their
	// batch dimension.
	PredictNoise(ctx context.Context, latents *tensor.Tensor, timestep int, embeddings *tensor.Tensor) (*tensor.Tensor, error)
}

// Autoencoder maps between pixel space and latent space.
type Autoencoder interface {
	// Encode returns the latent distribution mean for an image tensor in
	// [-1, 1]. The 0.18215 scale is applied by the caller, not here.
	Encode(ctx context.Context, image *tensor.Tensor) (*tensor.Tensor, error)
	// Decode maps latents (already divided by the scale) back to image
	// tensors in [-1, 1].
	Decode(ctx context.Context, latents *tensor.Tensor) (*tensor.Tensor, error)
}

// Model bundles the frozen components of a pretrained latent diffusion
// model. Close releases the backend sessions and the device context.
type Model struct {
	Text TextEncoder
	UNet NoisePredictor
	VAE  Autoencoder

	closer func() error
}

// Close releases backend resources. Safe to call on a model without one.
func (m *Model) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
