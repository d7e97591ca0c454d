package blend

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math/rand"
	"time"

	"github.com/JingyuanHe1222/blended-latent-diffusion/imaging"
	"github.com/JingyuanHe1222/blended-latent-diffusion/mask"
	"github.com/JingyuanHe1222/blended-latent-diffusion/model"
	"github.com/JingyuanHe1222/blended-latent-diffusion/scheduler"
	"github.com/JingyuanHe1222/blended-latent-diffusion/tensor"
)

// Spatial downsampling factor between image space and latent space.
const latentFactor = 8

// Defaults for zero-valued Request fields.
const (
	DefaultHeight        = 512
	DefaultWidth         = 512
	DefaultSteps         = 50
	DefaultBatchSize     = 4
	DefaultGuidanceScale = 7.5
	DefaultBlendingStart = 0.25
	DefaultSeed          = 42
)

// Pipeline runs blended latent diffusion over injected model components.
type Pipeline struct {
	Text      model.TextEncoder
	UNet      model.NoisePredictor
	VAE       model.Autoencoder
	Scheduler scheduler.Scheduler
}

// NewPipeline wires a loaded model to a sampler.
func NewPipeline(m *model.Model, s scheduler.Scheduler) *Pipeline {
	return &Pipeline{Text: m.Text, UNet: m.UNet, VAE: m.VAE, Scheduler: s}
}

// Request describes one editing run. Zero values take the defaults above;
// Prompts must hold either a single prompt, replicated across the batch, or
// exactly BatchSize prompts.
type Request struct {
	Prompts   []string
	ImagePath string
	MaskPath  string

	Height    int
	Width     int
	BatchSize int
	Steps     int

	GuidanceScale float32
	Seed          int64

	// BlendingStart is the fraction of the schedule to skip before blending
	// begins. 1.0 skips everything and decodes pure noise.
	BlendingStart float64

	// Morph enables progressive mask morphology: erosion during the first
	// half of the blended steps, growing dilation afterwards.
	Morph        bool
	DilationInit int

	// Progress, when set, is called after each completed step.
	Progress func(step, total int)
}

// normalize applies defaults and validates the request.
func (r *Request) normalize() error {
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Steps == 0 {
		r.Steps = DefaultSteps
	}
	if r.BatchSize == 0 {
		if len(r.Prompts) > 1 {
			r.BatchSize = len(r.Prompts)
		} else {
			r.BatchSize = DefaultBatchSize
		}
	}
	if r.GuidanceScale == 0 {
		r.GuidanceScale = DefaultGuidanceScale
	}
	if r.Seed == 0 {
		r.Seed = DefaultSeed
	}
	if r.DilationInit == 0 {
		r.DilationInit = mask.DefaultDilationInit
	}

	switch {
	case len(r.Prompts) == 0 || r.Prompts[0] == "":
		return fmt.Errorf("%w: empty prompt", ErrConfiguration)
	case len(r.Prompts) > 1 && len(r.Prompts) != r.BatchSize:
		return fmt.Errorf("%w: %d prompts for batch size %d", ErrConfiguration, len(r.Prompts), r.BatchSize)
	case r.ImagePath == "":
		return fmt.Errorf("%w: missing source image", ErrConfiguration)
	case r.MaskPath == "":
		return fmt.Errorf("%w: missing mask", ErrConfiguration)
	case r.Height < latentFactor || r.Height%latentFactor != 0:
		return fmt.Errorf("%w: height %d not a multiple of %d", ErrConfiguration, r.Height, latentFactor)
	case r.Width < latentFactor || r.Width%latentFactor != 0:
		return fmt.Errorf("%w: width %d not a multiple of %d", ErrConfiguration, r.Width, latentFactor)
	case r.Steps < 0:
		return fmt.Errorf("%w: negative step count", ErrConfiguration)
	case r.BatchSize < 0:
		return fmt.Errorf("%w: negative batch size", ErrConfiguration)
	case r.BlendingStart < 0:
		return fmt.Errorf("%w: negative blending start", ErrConfiguration)
	case r.DilationInit < 0:
		return fmt.Errorf("%w: negative dilation size", ErrConfiguration)
	}

	if len(r.Prompts) == 1 && r.BatchSize > 1 {
		p := r.Prompts[0]
		r.Prompts = make([]string, r.BatchSize)
		for i := range r.Prompts {
			r.Prompts[i] = p
		}
	}
	return nil
}

// Edit runs the full blended editing loop and returns one edited image per
// batch element. The run is deterministic for a fixed request: the same seed
// gives bit-identical latents and therefore identical images.
func (p *Pipeline) Edit(ctx context.Context, r Request) ([]image.Image, error) {
	if err := r.normalize(); err != nil {
		return nil, err
	}

	src, err := imaging.Load(r.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: source image: %v", ErrInvalidInput, err)
	}
	srcTensor := imaging.ToTensor(imaging.Resize(src, r.Width, r.Height))

	latentW, latentH := r.Width/latentFactor, r.Height/latentFactor
	m, err := mask.Load(r.MaskPath, latentW, latentH)
	if err != nil {
		return nil, fmt.Errorf("%w: mask: %v", ErrInvalidInput, err)
	}

	source, err := p.VAE.Encode(ctx, srcTensor)
	if err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	source = tensor.Scale(source, LatentScale)

	// One joint pass over [uncond; cond] so both halves come from the same
	// forward call.
	prompts := make([]string, 0, 2*r.BatchSize)
	for range r.Prompts {
		prompts = append(prompts, "")
	}
	prompts = append(prompts, r.Prompts...)
	embeddings, err := p.Text.EncodePrompts(ctx, prompts)
	if err != nil {
		return nil, fmt.Errorf("encode prompts: %w", err)
	}

	p.Scheduler.SetTimesteps(r.Steps)
	timesteps := p.Scheduler.Timesteps()
	skip := int(float64(len(timesteps)) * r.BlendingStart)
	if skip > len(timesteps) {
		skip = len(timesteps)
	}
	steps := timesteps[skip:]
	threshold := len(steps) / 2
	if threshold < 1 {
		threshold = 1
	}

	rng := rand.New(rand.NewSource(r.Seed))
	latents := tensor.Randn(rng, r.BatchSize, source.Shape[1], latentH, latentW)
	sourceBatch := tensor.Tile(source, r.BatchSize)

	start := time.Now()
	slog.Info("editing", "steps", len(steps), "batch", r.BatchSize, "seed", r.Seed)

	for i, t := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		joint := p.Scheduler.ScaleModelInput(tensor.Concat(latents, latents), t)
		noise, err := p.UNet.PredictNoise(ctx, joint, t, embeddings)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		latents = p.Scheduler.Step(guide(noise, r.GuidanceScale), t, latents)

		cur := m
		if r.Morph {
			cur = mask.Morph(m, i, threshold, r.DilationInit)
		}
		noised := p.Scheduler.AddNoise(sourceBatch, tensor.RandnLike(rng, latents), t)
		latents = Blend(latents, noised, cur)

		if r.Progress != nil {
			r.Progress(i+1, len(steps))
		}
	}

	decoded, err := p.VAE.Decode(ctx, tensor.Scale(latents, 1/LatentScale))
	if err != nil {
		return nil, fmt.Errorf("decode latents: %w", err)
	}
	slog.Info("done", "elapsed", time.Since(start).Round(time.Millisecond))

	return imaging.FromTensor(decoded), nil
}
