package scheduler

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JingyuanHe1222/blended-latent-diffusion/tensor"
)

func TestTimestepsStrictlyDecreasing(t *testing.T) {
	s := NewDefaultDDIM()
	s.SetTimesteps(50)

	ts := s.Timesteps()
	if len(ts) != 50 {
		t.Fatalf("len(timesteps) = %d, want 50", len(ts))
	}
	if ts[0] != 980 {
		t.Errorf("first timestep = %d, want 980", ts[0])
	}
	if ts[len(ts)-1] != 0 {
		t.Errorf("last timestep = %d, want 0", ts[len(ts)-1])
	}
	for i := 1; i < len(ts); i++ {
		if ts[i] >= ts[i-1] {
			t.Fatalf("timesteps not strictly decreasing at %d: %d >= %d", i, ts[i], ts[i-1])
		}
	}
}

func TestStepDeterministic(t *testing.T) {
	s := NewDefaultDDIM()
	s.SetTimesteps(50)

	sample := tensor.Randn(rand.New(rand.NewSource(1)), 1, 4, 8, 8)
	noise := tensor.Randn(rand.New(rand.NewSource(2)), 1, 4, 8, 8)

	a := s.Step(noise, 980, sample)
	b := s.Step(noise, 980, sample)
	if diff := cmp.Diff(a.Data, b.Data); diff != "" {
		t.Errorf("Step is not deterministic (-a +b):\n%s", diff)
	}
}

func TestStepReducesNoiseOnExactPrediction(t *testing.T) {
	// If the model predicts exactly the noise that was added, stepping must
	// move the sample toward the clean original.
	s := NewDefaultDDIM()
	s.SetTimesteps(50)

	rng := rand.New(rand.NewSource(3))
	clean := tensor.Randn(rng, 1, 4, 8, 8)
	noise := tensor.Randn(rng, 1, 4, 8, 8)

	timestep := 980
	noised := s.AddNoise(clean, noise, timestep)
	stepped := s.Step(noise, timestep, noised)

	var before, after float64
	for i := range clean.Data {
		d0 := float64(noised.Data[i] - clean.Data[i])
		d1 := float64(stepped.Data[i] - clean.Data[i])
		before += d0 * d0
		after += d1 * d1
	}
	if after >= before {
		t.Errorf("distance to clean sample grew: %f -> %f", before, after)
	}
}

func TestAddNoiseAtZeroKeepsSignal(t *testing.T) {
	s := NewDefaultDDIM()
	s.SetTimesteps(50)

	clean := tensor.From([]float32{1, -1, 0.5, 0}, 1, 4)
	noise := tensor.From([]float32{10, 10, 10, 10}, 1, 4)

	got := s.AddNoise(clean, noise, 0)
	// At t=0 almost all weight is on the signal.
	for i := range clean.Data {
		if math.Abs(float64(got.Data[i]-clean.Data[i])) > 0.35 {
			t.Errorf("Data[%d] = %f, want near %f", i, got.Data[i], clean.Data[i])
		}
	}
}

func TestAddNoiseWeightsAreComplementary(t *testing.T) {
	// sqrt(a)^2 + sqrt(1-a)^2 == 1 at every timestep.
	s := NewDefaultDDIM()
	s.SetTimesteps(50)

	one := tensor.From([]float32{1}, 1, 1)
	zero := tensor.From([]float32{0}, 1, 1)
	for _, ts := range s.Timesteps() {
		sig := s.AddNoise(one, zero, ts).Data[0]
		noi := s.AddNoise(zero, one, ts).Data[0]
		sum := float64(sig*sig + noi*noi)
		if math.Abs(sum-1) > 1e-5 {
			t.Errorf("t=%d: signal^2+noise^2 = %f, want 1", ts, sum)
		}
	}
}

func TestScaleModelInputIdentity(t *testing.T) {
	s := NewDefaultDDIM()
	s.SetTimesteps(50)

	sample := tensor.From([]float32{1, 2, 3, 4}, 1, 4)
	got := s.ScaleModelInput(sample, 980)
	if diff := cmp.Diff(sample.Data, got.Data); diff != "" {
		t.Errorf("DDIM ScaleModelInput modified sample (-want +got):\n%s", diff)
	}
}
