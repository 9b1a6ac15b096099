package avatar3d

// MorphWeights is the influence array of a morph mesh, one value per morph
// target. Values are kept in [0,1].
type MorphWeights []float32

func NewMorphWeights(n int) MorphWeights {
	if n <= 0 {
		return nil
	}
	return make(MorphWeights, n)
}

func (w MorphWeights) Len() int {
	return len(w)
}

func (w MorphWeights) InRange(idx int) bool {
	return idx >= 0 && idx < len(w)
}

func (w MorphWeights) Set(idx int, value float32) {
	if !w.InRange(idx) {
		return
	}
	w[idx] = clamp(value, 0, 1)
}

func (w MorphWeights) Get(idx int) float32 {
	if !w.InRange(idx) {
		return 0
	}
	return w[idx]
}

// Reset forces the neutral pose.
func (w MorphWeights) Reset() {
	for i := range w {
		w[i] = 0
	}
}

func (w MorphWeights) IsNeutral() bool {
	for _, v := range w {
		if v != 0 {
			return false
		}
	}
	return true
}

func (w MorphWeights) Clone() MorphWeights {
	if w == nil {
		return nil
	}
	out := make(MorphWeights, len(w))
	copy(out, w)
	return out
}

func (w MorphWeights) Max() float32 {
	var m float32
	for _, v := range w {
		if v > m {
			m = v
		}
	}
	return m
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
