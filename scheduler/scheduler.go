// Package scheduler provides deterministic step-wise samplers for the
// denoising loop. The blending logic only relies on the Scheduler contract
// below, so any compliant sampler can be substituted without touching it.
package scheduler

import "github.com/JingyuanHe1222/blended-latent-diffusion/tensor"

// Scheduler is a deterministic sampler over a discrete noise schedule.
//
// Numerical contract:
//   - SetTimesteps(n) selects n timesteps out of the training schedule;
//     Timesteps returns them strictly decreasing, highest noise first.
//   - ScaleModelInput returns the sample scaled however the denoising network
//     was trained to expect at the given timestep (identity for DDIM).
//   - Step advances a sample from noise level t to the next lower level given
//     the model's noise estimate. It must be a pure function of its inputs:
//     equal inputs give bit-equal outputs.
//   - AddNoise produces the forward-process sample at level t from a clean
//     sample and unit Gaussian noise. For an all-signal schedule entry it
//     returns the clean sample unchanged.
type Scheduler interface {
	SetTimesteps(steps int)
	Timesteps() []int
	ScaleModelInput(sample *tensor.Tensor, timestep int) *tensor.Tensor
	Step(noisePred *tensor.Tensor, timestep int, sample *tensor.Tensor) *tensor.Tensor
	AddNoise(original, noise *tensor.Tensor, timestep int) *tensor.Tensor
}
