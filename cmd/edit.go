package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/JingyuanHe1222/blended-latent-diffusion/blend"
	"github.com/JingyuanHe1222/blended-latent-diffusion/envconfig"
	"github.com/JingyuanHe1222/blended-latent-diffusion/imaging"
	"github.com/JingyuanHe1222/blended-latent-diffusion/model"
	"github.com/JingyuanHe1222/blended-latent-diffusion/progress"
	"github.com/JingyuanHe1222/blended-latent-diffusion/scheduler"
)

type editOptions struct {
	prompts       []string
	initImage     string
	maskPath      string
	modelDir      string
	outputPath    string
	device        string
	height        int
	width         int
	batchSize     int
	steps         int
	seed          int64
	guidance      float32
	blendingStart float64
	morph         bool
	dilation      int
}

func newEditCmd() *cobra.Command {
	var opts editOptions

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit the masked region of an image to match a prompt",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEdit(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.prompts, "prompt", "p", nil, "Target prompt (repeat for per-image prompts)")
	f.StringVar(&opts.initImage, "init-image", "", "Source image to edit")
	f.StringVar(&opts.maskPath, "mask", "", "Mask image, white marks the editable region")
	f.StringVar(&opts.modelDir, "model", envconfig.Models(), "Model directory")
	f.StringVarP(&opts.outputPath, "output", "o", "outputs/res.jpg", "Output image path")
	f.StringVar(&opts.device, "device", envconfig.Device(), "Execution provider (cpu or cuda)")
	f.IntVar(&opts.height, "height", blend.DefaultHeight, "Output height in pixels")
	f.IntVar(&opts.width, "width", blend.DefaultWidth, "Output width in pixels")
	f.IntVar(&opts.batchSize, "batch-size", blend.DefaultBatchSize, "Number of candidate images")
	f.IntVar(&opts.steps, "steps", blend.DefaultSteps, "Denoising steps")
	f.Int64Var(&opts.seed, "seed", blend.DefaultSeed, "Random seed")
	f.Float32Var(&opts.guidance, "guidance", blend.DefaultGuidanceScale, "Classifier-free guidance scale")
	f.Float64Var(&opts.blendingStart, "blending-start", blend.DefaultBlendingStart, "Fraction of the schedule to skip before blending")
	f.BoolVar(&opts.morph, "morph", false, "Progressively erode then dilate the mask")
	f.IntVar(&opts.dilation, "dilation", 0, "Peak dilation kernel size for --morph")

	cmd.MarkFlagRequired("prompt")     //nolint:errcheck
	cmd.MarkFlagRequired("init-image") //nolint:errcheck
	cmd.MarkFlagRequired("mask")       //nolint:errcheck

	return cmd
}

func runEdit(cmd *cobra.Command, opts editOptions) error {
	device, err := model.ParseDevice(opts.device)
	if err != nil {
		return err
	}

	interactive := term.IsTerminal(int(os.Stderr.Fd())) && !envconfig.NoProgress()

	var p *progress.Progress
	var spinner *progress.Spinner
	if interactive {
		p = progress.NewProgress(os.Stderr)
		defer p.Stop()

		spinner = progress.NewSpinner("loading model")
		p.Add(spinner)
	}

	m, err := model.Load(opts.modelDir, device)
	if err != nil {
		return err
	}
	defer m.Close()
	if spinner != nil {
		spinner.Stop()
	}

	req := blend.Request{
		Prompts:       opts.prompts,
		ImagePath:     opts.initImage,
		MaskPath:      opts.maskPath,
		Height:        opts.height,
		Width:         opts.width,
		BatchSize:     opts.batchSize,
		Steps:         opts.steps,
		GuidanceScale: opts.guidance,
		Seed:          opts.seed,
		BlendingStart: opts.blendingStart,
		Morph:         opts.morph,
		DilationInit:  opts.dilation,
	}

	if interactive {
		// The bar is sized on the first callback since blending-start can
		// shorten the schedule.
		var bar *progress.StepBar
		req.Progress = func(step, total int) {
			if bar == nil {
				bar = progress.NewStepBar("denoising", total)
				p.Add(bar)
			}
			bar.Set(step)
		}
	}

	pipeline := blend.NewPipeline(m, scheduler.NewDefaultDDIM())
	images, err := pipeline.Edit(cmd.Context(), req)
	if err != nil {
		return err
	}

	if interactive {
		p.StopAndClear()
	}

	if err := imaging.Save(imaging.ConcatHorizontal(images), opts.outputPath); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "saved", opts.outputPath)
	return nil
}
