package mask

// Morphology for the time-varying mask. The schedule splits the processed
// timesteps in half: the first half erodes the mask with a small fixed
// element so early edits stay conservative, the second half dilates it with a
// linearly growing element so the edit spreads into its surroundings near the
// end of sampling.

const (
	// DefaultDilationInit scales the dilation element growth.
	DefaultDilationInit = 5
	erodeSize           = 2
)

// DilationSize returns the dilation element side length for a step in the
// dilation phase: floor(dilationInit * step / threshold). Non-decreasing in
// step for fixed threshold and dilationInit.
func DilationSize(step, threshold, dilationInit int) int {
	return dilationInit * step / threshold
}

// Morph derives the mask for one denoising step from the original static
// mask. It never modifies m. Steps below threshold erode; later steps dilate
// with a growing element. A dilation element smaller than 1 would be an
// invalid kernel and is treated as no dilation at all.
func Morph(m *Mask, step, threshold, dilationInit int) *Mask {
	// Closing with a 1x1 element. Geometrically a no-op; kept as the
	// normalization pass the morphing schedule was tuned with.
	closed := m.dilate(1).erode(1)

	if step < threshold {
		return closed.erode(erodeSize)
	}

	size := DilationSize(step, threshold, dilationInit)
	if size < 1 {
		return closed
	}
	return closed.dilate(size)
}

// erode shrinks the active region with a k x k element anchored at
// floor(k/2). A pixel stays set only if every in-bounds pixel under the
// element is set.
func (m *Mask) erode(k int) *Mask {
	anchor := k / 2
	out := New(m.W, m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			v := float32(1)
			for dy := -anchor; dy < k-anchor; dy++ {
				for dx := -anchor; dx < k-anchor; dx++ {
					yy, xx := y+dy, x+dx
					if yy < 0 || yy >= m.H || xx < 0 || xx >= m.W {
						continue
					}
					if m.Data[yy*m.W+xx] < v {
						v = m.Data[yy*m.W+xx]
					}
				}
			}
			out.Data[y*m.W+x] = v
		}
	}
	return out
}

// dilate grows the active region with a k x k element anchored at
// floor(k/2). A pixel becomes set if any in-bounds pixel under the element
// is set.
func (m *Mask) dilate(k int) *Mask {
	anchor := k / 2
	out := New(m.W, m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			v := float32(0)
			for dy := -anchor; dy < k-anchor; dy++ {
				for dx := -anchor; dx < k-anchor; dx++ {
					yy, xx := y+dy, x+dx
					if yy < 0 || yy >= m.H || xx < 0 || xx >= m.W {
						continue
					}
					if m.Data[yy*m.W+xx] > v {
						v = m.Data[yy*m.W+xx]
					}
				}
			}
			out.Data[y*m.W+x] = v
		}
	}
	return out
}
