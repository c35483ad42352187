package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ReadWAVFloat32 декодирует WAV файл в нормализованные f32 семплы [-1, 1].
// Возвращает интерлив-семплы, частоту дискретизации и число каналов.
func ReadWAVFloat32(path string) ([]float32, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open WAV: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode WAV: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, 0, fmt.Errorf("empty WAV file: %s", path)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / scale
	}

	return samples, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// normalizeChannels приводит число каналов: моно<->стерео дублированием
// либо усреднением пар. Прочие раскладки возвращаются как есть.
func normalizeChannels(samples []float32, fromChannels, toChannels int) []float32 {
	if fromChannels == toChannels {
		return samples
	}

	switch {
	case fromChannels == 1 && toChannels == 2:
		out := make([]float32, 0, len(samples)*2)
		for _, s := range samples {
			out = append(out, s, s)
		}
		return out
	case fromChannels == 2 && toChannels == 1:
		out := make([]float32, 0, (len(samples)+1)/2)
		for i := 0; i < len(samples); i += 2 {
			if i+1 < len(samples) {
				out = append(out, (samples[i]+samples[i+1])/2)
			} else {
				out = append(out, samples[i])
			}
		}
		return out
	default:
		return samples
	}
}

// MixWAVFiles микширует два WAV файла в один выходной файл.
//
// Формат выхода берётся от первого файла (каналы и частота), PCM16.
// Второй поток приводится к раскладке и частоте первого, после чего
// потоки усредняются по max(len_a, len_b); короткий дополняется тишиной.
// Усреднение вместо суммы жертвует 6 дБ запаса ради гарантии от клиппинга.
func MixWAVFiles(pathA, pathB, outputPath string) error {
	samplesA, rateA, channelsA, err := ReadWAVFloat32(pathA)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", pathA, err)
	}
	samplesB, rateB, channelsB, err := ReadWAVFloat32(pathB)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", pathB, err)
	}

	samplesB = normalizeChannels(samplesB, channelsB, channelsA)
	samplesB = Resample(samplesB, rateB, rateA)

	maxLen := len(samplesA)
	if len(samplesB) > maxLen {
		maxLen = len(samplesB)
	}

	writer, err := NewWAVWriter(outputPath, rateA, channelsA, 16)
	if err != nil {
		return err
	}

	mixed := make([]float32, maxLen)
	for i := 0; i < maxLen; i++ {
		var a, b float32
		if i < len(samplesA) {
			a = samplesA[i]
		}
		if i < len(samplesB) {
			b = samplesB[i]
		}
		mixed[i] = (a + b) / 2
	}

	if err := writer.Write(mixed); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write mixed audio: %w", err)
	}

	return writer.Close()
}
