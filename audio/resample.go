package audio

import "math"

// Resample converts samples from srcRate to dstRate by averaging every
// source sample that falls in each output slot. Equal rates return the
// input slice itself.
func Resample(samples []float32, srcRate, dstRate uint32) []float32 {
	if srcRate == dstRate || srcRate == 0 || dstRate == 0 {
		return samples
	}
	ratio := float64(srcRate) / float64(dstRate)
	n := int(math.Round(float64(len(samples)) / ratio))
	out := make([]float32, n)

	lo := 0
	for i := range n {
		hi := int(math.Round(float64(i+1) * ratio))
		var sum float64
		count := 0
		for j := lo; j < hi && j < len(samples); j++ {
			sum += float64(samples[j])
			count++
		}
		if count > 0 {
			out[i] = float32(sum / float64(count))
		}
		lo = hi
	}
	return out
}

// RMS returns the root-mean-square level of a block.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// Interpolate converts samples from srcRate to dstRate by linear
// interpolation between neighbouring source samples. It suits upsampling,
// where Resample would leave empty output slots silent.
func Interpolate(samples []float32, srcRate, dstRate uint32) []float32 {
	if srcRate == dstRate || srcRate == 0 || dstRate == 0 || len(samples) == 0 {
		return samples
	}
	step := float64(srcRate) / float64(dstRate)
	n := int(math.Round(float64(len(samples)) / step))
	out := make([]float32, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}

// Convert picks Resample when reducing the rate and Interpolate when
// raising it.
func Convert(samples []float32, srcRate, dstRate uint32) []float32 {
	if dstRate > srcRate {
		return Interpolate(samples, srcRate, dstRate)
	}
	return Resample(samples, srcRate, dstRate)
}
