package tensor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConcatChunkRoundTrip(t *testing.T) {
	a := From([]float32{1, 2, 3, 4}, 1, 4)
	b := From([]float32{5, 6, 7, 8}, 1, 4)

	joined := Concat(a, b)
	if joined.Shape[0] != 2 {
		t.Fatalf("batch = %d, want 2", joined.Shape[0])
	}

	gotA, gotB := Chunk2(joined)
	if diff := cmp.Diff(a.Data, gotA.Data); diff != "" {
		t.Errorf("first half mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.Data, gotB.Data); diff != "" {
		t.Errorf("second half mismatch (-want +got):\n%s", diff)
	}
}

func TestRandnDeterministic(t *testing.T) {
	a := Randn(rand.New(rand.NewSource(42)), 1, 4, 8, 8)
	b := Randn(rand.New(rand.NewSource(42)), 1, 4, 8, 8)

	if diff := cmp.Diff(a.Data, b.Data); diff != "" {
		t.Errorf("same seed produced different noise (-a +b):\n%s", diff)
	}

	c := Randn(rand.New(rand.NewSource(43)), 1, 4, 8, 8)
	same := true
	for i := range a.Data {
		if a.Data[i] != c.Data[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical noise")
	}
}

func TestRandnMoments(t *testing.T) {
	n := Randn(rand.New(rand.NewSource(7)), 1, 4, 64, 64)

	var sum, sumSq float64
	for _, v := range n.Data {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	count := float64(len(n.Data))
	mean := sum / count
	variance := sumSq/count - mean*mean

	if math.Abs(mean) > 0.05 {
		t.Errorf("mean = %f, want ~0", mean)
	}
	if math.Abs(variance-1) > 0.05 {
		t.Errorf("variance = %f, want ~1", variance)
	}
}

func TestHalfRoundTrip(t *testing.T) {
	orig := From([]float32{0, 1, -1, 0.5, 0.18215, 7.5}, 1, 6)

	got := FromHalf(orig.Half(), 1, 6)
	for i := range orig.Data {
		if math.Abs(float64(got.Data[i]-orig.Data[i])) > 1e-3 {
			t.Errorf("Data[%d] = %f after round trip, want ~%f", i, got.Data[i], orig.Data[i])
		}
	}

	gotBytes := FromHalfBytes(orig.HalfBytes(), 1, 6)
	if diff := cmp.Diff(got.Data, gotBytes.Data); diff != "" {
		t.Errorf("byte and bit conversions disagree (-bits +bytes):\n%s", diff)
	}
}

func TestFromPanicsOnShapeMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("From with mismatched shape did not panic")
		}
	}()
	From([]float32{1, 2, 3}, 2, 2)
}
