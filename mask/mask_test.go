package mask

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// blockMask returns a 64x64 mask with a centered w x h active block.
func blockMask(w, h int) *Mask {
	m := New(64, 64)
	x0 := (64 - w) / 2
	y0 := (64 - h) / 2
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			m.Data[y*64+x] = 1
		}
	}
	return m
}

func TestThresholdIdempotent(t *testing.T) {
	m := New(4, 4)
	copy(m.Data, []float32{0, 0.2, 0.5, 0.8, 1, 0.49, 0.51, 0, 1, 1, 0, 0, 0.7, 0.3, 1, 0})

	m.Threshold()
	first := append([]float32{}, m.Data...)
	m.Threshold()

	if diff := cmp.Diff(first, m.Data); diff != "" {
		t.Errorf("second threshold changed mask (-first +second):\n%s", diff)
	}
	for i, v := range m.Data {
		if v != 0 && v != 1 {
			t.Errorf("Data[%d] = %f, want 0 or 1", i, v)
		}
	}
}

func TestFromImageThresholdsAtHalf(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			// Left half dark, right half light.
			v := uint8(40)
			if x >= 32 {
				v = 200
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	m := FromImage(img, 64, 64)
	if got := m.At(0, 0); got != 0 {
		t.Errorf("dark pixel = %f, want 0", got)
	}
	if got := m.At(63, 0); got != 1 {
		t.Errorf("light pixel = %f, want 1", got)
	}
	if m.Area() != 64*32 {
		t.Errorf("area = %d, want %d", m.Area(), 64*32)
	}
}

func TestMorphDoesNotMutateOriginal(t *testing.T) {
	m := blockMask(10, 10)
	orig := append([]float32{}, m.Data...)

	Morph(m, 0, 20, DefaultDilationInit)
	Morph(m, 30, 20, DefaultDilationInit)

	if diff := cmp.Diff(orig, m.Data); diff != "" {
		t.Errorf("Morph mutated its input (-before +after):\n%s", diff)
	}
}

func TestErosionPhaseShrinks(t *testing.T) {
	m := blockMask(10, 10)
	got := Morph(m, 3, 20, DefaultDilationInit)

	if got.Area() >= m.Area() {
		t.Errorf("erosion phase area = %d, want < %d", got.Area(), m.Area())
	}
}

func TestDilationPhaseGrows(t *testing.T) {
	m := blockMask(10, 10)
	got := Morph(m, 25, 20, DefaultDilationInit)

	if got.Area() <= m.Area() {
		t.Errorf("dilation phase area = %d, want > %d", got.Area(), m.Area())
	}
}

func TestDilationSizeMonotonic(t *testing.T) {
	threshold := 19
	prev := 0
	for step := threshold; step < 38; step++ {
		size := DilationSize(step, threshold, DefaultDilationInit)
		if size < prev {
			t.Fatalf("DilationSize(%d) = %d, smaller than previous %d", step, size, prev)
		}
		prev = size
	}
}

func TestMorphGuardsEmptyKernel(t *testing.T) {
	// dilationInit 0 would produce a 0x0 element; Morph must treat that as no
	// dilation instead of failing.
	m := blockMask(10, 10)
	got := Morph(m, 25, 20, 0)

	if diff := cmp.Diff(m.Data, got.Data); diff != "" {
		t.Errorf("guarded dilation changed mask (-want +got):\n%s", diff)
	}
}

func TestMorphOutputBinary(t *testing.T) {
	m := blockMask(11, 7)
	for _, step := range []int{0, 5, 19, 20, 30, 39} {
		got := Morph(m, step, 20, DefaultDilationInit)
		for i, v := range got.Data {
			if v != 0 && v != 1 {
				t.Fatalf("step %d: Data[%d] = %f, want 0 or 1", step, i, v)
			}
		}
	}
}

func TestToTensorShape(t *testing.T) {
	m := blockMask(10, 10)
	tt := m.ToTensor()
	if diff := cmp.Diff([]int{1, 1, 64, 64}, tt.Shape); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
}
