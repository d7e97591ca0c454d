//go:build ort

package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sync/errgroup"

	"github.com/JingyuanHe1222/blended-latent-diffusion/envconfig"
	"github.com/JingyuanHe1222/blended-latent-diffusion/tensor"
	"github.com/JingyuanHe1222/blended-latent-diffusion/tokenizer"
)

// Latent channels of the Stable Diffusion autoencoder.
const latentChannels = 4

// Load builds the model from an exported ONNX directory:
//
//	<dir>/tokenizer/{vocab.json,merges.txt}
//	<dir>/onnx/{clip_text_encoder,unet,vae_encoder,vae_decoder}.onnx
//
// The ONNX subdirectory can be overridden with BLD_ONNX_DIR. A CUDA device
// that cannot be initialized fails here with ErrDeviceUnavailable; nothing is
// deferred to the denoising loop.
func Load(dir string, device Device) (*Model, error) {
	lib := findORTLibrary()
	if lib == "" {
		return nil, errors.New("libonnxruntime not found; install onnxruntime or set BLD_ORT_LIBRARY")
	}
	slog.Debug("onnxruntime", "library", lib)

	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)

	switch device {
	case DeviceCUDA:
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("%w: cuda: %v", ErrDeviceUnavailable, err)
		}
		err = opts.AppendExecutionProviderCUDA(cudaOpts)
		cudaOpts.Destroy()
		if err != nil {
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("%w: cuda: %v", ErrDeviceUnavailable, err)
		}
		slog.Info("using CUDA execution provider")
	default:
		opts.SetIntraOpNumThreads(4)
		opts.SetInterOpNumThreads(1)
		slog.Info("using CPU execution provider")
	}

	tok, err := tokenizer.Load(filepath.Join(dir, "tokenizer"))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("tokenizer: %w", err)
	}

	onnxDir := envconfig.OnnxDir()
	if onnxDir == "" {
		onnxDir = filepath.Join(dir, "onnx")
	}

	var text *ortTextEncoder
	var unet *ortUNet
	var vae *ortAutoencoder

	// The sessions are independent; create them concurrently.
	var g errgroup.Group
	g.Go(func() error {
		s, err := openSession(filepath.Join(onnxDir, "clip_text_encoder.onnx"), opts)
		if err != nil {
			return err
		}
		text = &ortTextEncoder{session: s, tok: tok}
		return nil
	})
	g.Go(func() error {
		s, err := openSession(filepath.Join(onnxDir, "unet.onnx"), opts)
		if err != nil {
			return err
		}
		unet = &ortUNet{session: s}
		return nil
	})
	g.Go(func() error {
		enc, err := openSession(filepath.Join(onnxDir, "vae_encoder.onnx"), opts)
		if err != nil {
			return err
		}
		dec, err := openSession(filepath.Join(onnxDir, "vae_decoder.onnx"), opts)
		if err != nil {
			enc.destroy()
			return err
		}
		vae = &ortAutoencoder{encoder: enc, decoder: dec}
		return nil
	})
	if err := g.Wait(); err != nil {
		if text != nil {
			text.destroy()
		}
		if unet != nil {
			unet.destroy()
		}
		if vae != nil {
			vae.destroy()
		}
		ort.DestroyEnvironment()
		return nil, err
	}

	return &Model{
		Text: text,
		UNet: unet,
		VAE:  vae,
		closer: func() error {
			text.destroy()
			unet.destroy()
			vae.destroy()
			return ort.DestroyEnvironment()
		},
	}, nil
}

// findORTLibrary looks for libonnxruntime in BLD_ORT_LIBRARY and common
// install locations.
func findORTLibrary() string {
	if s := envconfig.OrtLibrary(); s != "" {
		return s
	}
	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.dylib",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// session wraps one ONNX session plus the metadata needed to feed it.
type session struct {
	sess      *ort.DynamicAdvancedSession
	inputType ort.TensorElementDataType
	outNames  []string
}

// openSession inspects a model file and creates a dynamic session for it.
func openSession(path string, opts *ort.SessionOptions) (*session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", filepath.Base(path), err)
	}

	inNames := make([]string, len(inputs))
	for i, in := range inputs {
		inNames[i] = in.Name
	}
	outNames := make([]string, len(outputs))
	for i, out := range outputs {
		outNames[i] = out.Name
	}

	sess, err := ort.NewDynamicAdvancedSession(path, inNames, outNames, opts)
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", filepath.Base(path), err)
	}
	slog.Debug("session created", "model", filepath.Base(path), "inputs", inNames, "outputs", outNames)

	return &session{sess: sess, inputType: inputs[0].DataType, outNames: outNames}, nil
}

func (s *session) destroy() {
	if s != nil && s.sess != nil {
		s.sess.Destroy()
	}
}

// run executes the session and extracts the first output as a float32
// tensor, widening fp16 outputs.
func (s *session) run(inputs []ort.Value) (*tensor.Tensor, error) {
	outputs := make([]ort.Value, len(s.outNames))
	if err := s.sess.Run(inputs, outputs); err != nil {
		return nil, err
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()
	return fromValue(outputs[0])
}

// makeValue converts a tensor to an ORT value of the session's input type.
func (s *session) makeValue(t *tensor.Tensor) (ort.Value, error) {
	shape := make([]int64, len(t.Shape))
	for i, d := range t.Shape {
		shape[i] = int64(d)
	}
	if s.inputType == ort.TensorElementDataTypeFloat16 {
		return ort.NewCustomDataTensor(ort.NewShape(shape...), t.HalfBytes(), ort.TensorElementDataTypeFloat16)
	}
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// fromValue widens an ORT output value into a float32 tensor.
func fromValue(v ort.Value) (*tensor.Tensor, error) {
	dims := v.GetShape()
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}

	switch t := v.(type) {
	case *ort.Tensor[float32]:
		data := make([]float32, len(t.GetData()))
		copy(data, t.GetData())
		return tensor.From(data, shape...), nil
	case *ort.Tensor[uint16]:
		return tensor.FromHalf(t.GetData(), shape...), nil
	case *ort.CustomDataTensor:
		return tensor.FromHalfBytes(t.GetData(), shape...), nil
	}
	return nil, fmt.Errorf("unsupported output tensor type %T", v)
}

// ortTextEncoder runs the CLIP text encoder session.
type ortTextEncoder struct {
	session *session
	tok     *tokenizer.Tokenizer
}

func (e *ortTextEncoder) EncodePrompts(ctx context.Context, prompts []string) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(prompts)*tokenizer.ContextLength)
	for _, p := range prompts {
		ids = append(ids, e.tok.Encode(p)...)
	}

	in, err := ort.NewTensor(ort.NewShape(int64(len(prompts)), tokenizer.ContextLength), ids)
	if err != nil {
		return nil, fmt.Errorf("token tensor: %w", err)
	}
	defer in.Destroy()

	out, err := e.session.run([]ort.Value{in})
	if err != nil {
		return nil, fmt.Errorf("text encoder: %w", err)
	}
	return out, nil
}

func (e *ortTextEncoder) destroy() { e.session.destroy() }

// ortUNet runs the noise-prediction network session.
type ortUNet struct {
	session *session
}

func (u *ortUNet) PredictNoise(ctx context.Context, latents *tensor.Tensor, timestep int, embeddings *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sample, err := u.session.makeValue(latents)
	if err != nil {
		return nil, fmt.Errorf("sample tensor: %w", err)
	}
	defer sample.Destroy()

	ts, err := ort.NewTensor(ort.NewShape(1), []int64{int64(timestep)})
	if err != nil {
		return nil, fmt.Errorf("timestep tensor: %w", err)
	}
	defer ts.Destroy()

	emb, err := u.session.makeValue(embeddings)
	if err != nil {
		return nil, fmt.Errorf("embedding tensor: %w", err)
	}
	defer emb.Destroy()

	out, err := u.session.run([]ort.Value{sample, ts, emb})
	if err != nil {
		return nil, fmt.Errorf("unet: %w", err)
	}
	return out, nil
}

func (u *ortUNet) destroy() { u.session.destroy() }

// ortAutoencoder runs the VAE encoder and decoder sessions.
type ortAutoencoder struct {
	encoder *session
	decoder *session
}

func (a *ortAutoencoder) Encode(ctx context.Context, image *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := a.encoder.makeValue(image)
	if err != nil {
		return nil, fmt.Errorf("image tensor: %w", err)
	}
	defer in.Destroy()

	out, err := a.encoder.run([]ort.Value{in})
	if err != nil {
		return nil, fmt.Errorf("vae encoder: %w", err)
	}

	// Some exports emit the distribution moments [B, 2C, h, w]; keep the
	// mean half for deterministic encoding.
	if len(out.Shape) == 4 && out.Shape[1] == 2*latentChannels {
		b, h, w := out.Shape[0], out.Shape[2], out.Shape[3]
		mean := tensor.New(b, latentChannels, h, w)
		plane := h * w
		for n := 0; n < b; n++ {
			src := n * 2 * latentChannels * plane
			dst := n * latentChannels * plane
			copy(mean.Data[dst:dst+latentChannels*plane], out.Data[src:src+latentChannels*plane])
		}
		return mean, nil
	}
	return out, nil
}

func (a *ortAutoencoder) Decode(ctx context.Context, latents *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := a.decoder.makeValue(latents)
	if err != nil {
		return nil, fmt.Errorf("latent tensor: %w", err)
	}
	defer in.Destroy()

	out, err := a.decoder.run([]ort.Value{in})
	if err != nil {
		return nil, fmt.Errorf("vae decoder: %w", err)
	}
	return out, nil
}

func (a *ortAutoencoder) destroy() {
	a.encoder.destroy()
	a.decoder.destroy()
}
