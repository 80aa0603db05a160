package audioconv

import "math"

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	n := len(in) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts between rates with linear interpolation.
func Resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 || inRate <= 0 || outRate <= 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		switch {
		case i0 >= len(in):
			out[i] = in[len(in)-1]
		case i1 >= len(in):
			out[i] = in[i0]
		default:
			a := float32(src - float64(i0))
			out[i] = in[i0]*(1-a) + in[i1]*a
		}
	}
	return out
}

// Gain scales samples in place and clamps to [-1, 1].
func Gain(in []float32, g float64) []float32 {
	for i, v := range in {
		in[i] = float32(clamp(float64(v)*g, -1, 1))
	}
	return in
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1, 1))
	}
	return out
}

func int16sToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
