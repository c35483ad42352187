package audio

import (
	"math"
	"path/filepath"
	"testing"
)

func writeTestWAV(t *testing.T, path string, samples []float32, rate, channels int) {
	t.Helper()
	writer, err := NewWAVWriter(path, rate, channels, 16)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}
	if err := writer.Write(samples); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func constSignal(value float32, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = value
	}
	return s
}

// TestMixWAVFilesAveraging смикшированный семпл — среднее двух входов
func TestMixWAVFilesAveraging(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.wav")
	pathB := filepath.Join(dir, "b.wav")
	out := filepath.Join(dir, "out.wav")

	writeTestWAV(t, pathA, constSignal(0.8, 1000), 16000, 1)
	writeTestWAV(t, pathB, constSignal(0.4, 1000), 16000, 1)

	if err := MixWAVFiles(pathA, pathB, out); err != nil {
		t.Fatalf("MixWAVFiles: %v", err)
	}

	samples, rate, channels, err := ReadWAVFloat32(out)
	if err != nil {
		t.Fatalf("ReadWAVFloat32: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("output format = %d Hz %d ch, want 16000 Hz 1 ch", rate, channels)
	}
	if len(samples) != 1000 {
		t.Fatalf("output length = %d, want 1000", len(samples))
	}
	// (0.8 + 0.4) / 2 = 0.6
	if math.Abs(float64(samples[500])-0.6) > 0.01 {
		t.Errorf("mixed sample = %v, want ~0.6", samples[500])
	}
}

// TestMixWAVFilesDifferentLengths выход длиной max(len_a, len_b),
// хвост короткого потока — тишина
func TestMixWAVFilesDifferentLengths(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.wav")
	pathB := filepath.Join(dir, "b.wav")
	out := filepath.Join(dir, "out.wav")

	writeTestWAV(t, pathA, constSignal(0.6, 500), 16000, 1)
	writeTestWAV(t, pathB, constSignal(0.6, 1500), 16000, 1)

	if err := MixWAVFiles(pathA, pathB, out); err != nil {
		t.Fatalf("MixWAVFiles: %v", err)
	}

	samples, _, _, err := ReadWAVFloat32(out)
	if err != nil {
		t.Fatalf("ReadWAVFloat32: %v", err)
	}
	if len(samples) != 1500 {
		t.Fatalf("output length = %d, want 1500", len(samples))
	}

	// В зоне перекрытия среднее 0.6, после конца A — половина от B
	if math.Abs(float64(samples[100])-0.6) > 0.01 {
		t.Errorf("overlap sample = %v, want ~0.6", samples[100])
	}
	if math.Abs(float64(samples[1000])-0.3) > 0.01 {
		t.Errorf("tail sample = %v, want ~0.3 (zero-padded A)", samples[1000])
	}
}

// TestMixWAVFilesRateConversion второй поток приводится к частоте первого
func TestMixWAVFilesRateConversion(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.wav")
	pathB := filepath.Join(dir, "b.wav")
	out := filepath.Join(dir, "out.wav")

	// Секунда на 16 кГц и секунда на 48 кГц
	writeTestWAV(t, pathA, constSignal(0.5, 16000), 16000, 1)
	writeTestWAV(t, pathB, constSignal(0.5, 48000), 48000, 1)

	if err := MixWAVFiles(pathA, pathB, out); err != nil {
		t.Fatalf("MixWAVFiles: %v", err)
	}

	samples, rate, _, err := ReadWAVFloat32(out)
	if err != nil {
		t.Fatalf("ReadWAVFloat32: %v", err)
	}
	if rate != 16000 {
		t.Errorf("output rate = %d, want 16000 (first input's rate)", rate)
	}
	// После ресемплинга оба потока по ~16000 семплов
	if len(samples) < 15900 || len(samples) > 16100 {
		t.Errorf("output length = %d, want ~16000", len(samples))
	}
}

// TestMixWAVFilesChannelNormalization стерео+моно: раскладка выхода от
// первого файла
func TestMixWAVFilesChannelNormalization(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "stereo.wav")
	pathB := filepath.Join(dir, "mono.wav")
	out := filepath.Join(dir, "out.wav")

	writeTestWAV(t, pathA, constSignal(0.4, 2000), 16000, 2)
	writeTestWAV(t, pathB, constSignal(0.2, 1000), 16000, 1)

	if err := MixWAVFiles(pathA, pathB, out); err != nil {
		t.Fatalf("MixWAVFiles: %v", err)
	}

	samples, rate, channels, err := ReadWAVFloat32(out)
	if err != nil {
		t.Fatalf("ReadWAVFloat32: %v", err)
	}
	if rate != 16000 || channels != 2 {
		t.Errorf("output format = %d Hz %d ch, want 16000 Hz 2 ch", rate, channels)
	}
	if len(samples) != 2000 {
		t.Fatalf("output length = %d, want 2000", len(samples))
	}
	// (0.4 + 0.2) / 2 = 0.3
	if math.Abs(float64(samples[100])-0.3) > 0.01 {
		t.Errorf("mixed sample = %v, want ~0.3", samples[100])
	}
}
