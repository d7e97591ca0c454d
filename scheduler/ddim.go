package scheduler

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/JingyuanHe1222/blended-latent-diffusion/tensor"
)

// Stable Diffusion training schedule constants.
const (
	DefaultTrainTimesteps = 1000
	DefaultBetaStart      = 0.00085
	DefaultBetaEnd        = 0.012
)

// DDIM implements deterministic DDIM sampling (eta=0) over a scaled-linear
// beta schedule. clip_sample is off and the final alpha is the first entry of
// the cumulative product, matching the schedule the editing pipeline was
// tuned against.
type DDIM struct {
	alphasCumprod  []float64
	trainTimesteps int
	inferenceSteps int
	timesteps      []int
}

// NewDDIM builds the schedule. Scaled linear:
// betas = linspace(sqrt(start), sqrt(end), n)^2.
func NewDDIM(trainTimesteps int, betaStart, betaEnd float64) *DDIM {
	betas := make([]float64, trainTimesteps)
	floats.Span(betas, math.Sqrt(betaStart), math.Sqrt(betaEnd))
	alphas := make([]float64, trainTimesteps)
	for i, b := range betas {
		alphas[i] = 1 - b*b
	}
	alphasCumprod := floats.CumProd(make([]float64, trainTimesteps), alphas)

	return &DDIM{
		alphasCumprod:  alphasCumprod,
		trainTimesteps: trainTimesteps,
	}
}

// NewDefaultDDIM builds the standard Stable Diffusion schedule.
func NewDefaultDDIM() *DDIM {
	return NewDDIM(DefaultTrainTimesteps, DefaultBetaStart, DefaultBetaEnd)
}

// SetTimesteps selects the inference schedule: steps evenly spaced timesteps,
// highest first.
func (s *DDIM) SetTimesteps(steps int) {
	s.inferenceSteps = steps
	ratio := s.trainTimesteps / steps
	s.timesteps = make([]int, steps)
	for i := range s.timesteps {
		s.timesteps[i] = (steps - 1 - i) * ratio
	}
}

// Timesteps returns the current inference schedule.
func (s *DDIM) Timesteps() []int {
	return s.timesteps
}

// ScaleModelInput is the identity for DDIM. It stays in the interface because
// other samplers (e.g. Karras-sigma ones) scale their inputs per timestep.
func (s *DDIM) ScaleModelInput(sample *tensor.Tensor, timestep int) *tensor.Tensor {
	return sample
}

// Step applies one deterministic DDIM update:
//
//	pred_x0     = (sample - sqrt(1-a_t) * noise) / sqrt(a_t)
//	prev_sample = sqrt(a_prev) * pred_x0 + sqrt(1-a_prev) * noise
func (s *DDIM) Step(noisePred *tensor.Tensor, timestep int, sample *tensor.Tensor) *tensor.Tensor {
	prev := timestep - s.trainTimesteps/s.inferenceSteps

	alphaT := s.alphasCumprod[timestep]
	alphaPrev := s.alphasCumprod[0]
	if prev >= 0 {
		alphaPrev = s.alphasCumprod[prev]
	}

	sqrtAlphaT := float32(math.Sqrt(alphaT))
	sqrtOneMinusAlphaT := float32(math.Sqrt(1 - alphaT))
	sqrtAlphaPrev := float32(math.Sqrt(alphaPrev))
	sqrtOneMinusAlphaPrev := float32(math.Sqrt(1 - alphaPrev))

	out := tensor.New(sample.Shape...)
	for i := range sample.Data {
		predX0 := (sample.Data[i] - sqrtOneMinusAlphaT*noisePred.Data[i]) / sqrtAlphaT
		out.Data[i] = sqrtAlphaPrev*predX0 + sqrtOneMinusAlphaPrev*noisePred.Data[i]
	}
	return out
}

// AddNoise runs the forward process at level t:
//
//	noised = sqrt(a_t) * original + sqrt(1-a_t) * noise
func (s *DDIM) AddNoise(original, noise *tensor.Tensor, timestep int) *tensor.Tensor {
	alphaT := s.alphasCumprod[timestep]
	sqrtAlphaT := float32(math.Sqrt(alphaT))
	sqrtOneMinusAlphaT := float32(math.Sqrt(1 - alphaT))

	out := tensor.New(original.Shape...)
	for i := range original.Data {
		out.Data[i] = sqrtAlphaT*original.Data[i] + sqrtOneMinusAlphaT*noise.Data[i]
	}
	return out
}

var _ Scheduler = (*DDIM)(nil)
