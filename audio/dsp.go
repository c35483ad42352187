package audio

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Resample линейная интерполяция между частотами дискретизации.
// Для речи под Whisper этого достаточно, полноценный полифазный
// ресемплер здесь не нужен.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(toRate) / float64(fromRate)
	newLen := int(float64(len(samples)) * ratio)
	result := make([]float32, 0, newLen)

	for i := 0; i < newLen; i++ {
		srcIdx := float64(i) / ratio
		idx0 := int(srcIdx)
		idx1 := idx0 + 1
		if idx1 > len(samples)-1 {
			idx1 = len(samples) - 1
		}
		frac := srcIdx - float64(idx0)

		if idx0 < len(samples) {
			sample := float64(samples[idx0])*(1.0-frac) + float64(samples[idx1])*frac
			result = append(result, float32(sample))
		}
	}

	return result
}

// DownmixMono сводит интерлив-каналы в моно усреднением
func DownmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 || len(samples) == 0 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// CalculateRMS вычисляет RMS-энергию семплов
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	s64 := make([]float64, len(samples))
	for i, s := range samples {
		s64[i] = float64(s)
	}
	return math.Sqrt(floats.Dot(s64, s64) / float64(len(s64)))
}
