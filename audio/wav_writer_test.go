package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWAVWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wav")

	writer, err := NewWAVWriter(path, 16000, 1, 16)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}

	in := []float32{0, 0.5, -0.5, 1.0, -1.0}
	if err := writer.Write(in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if writer.SamplesWritten() != int64(len(in)) {
		t.Errorf("SamplesWritten = %d, want %d", writer.SamplesWritten(), len(in))
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	samples, rate, channels, err := ReadWAVFloat32(path)
	if err != nil {
		t.Fatalf("ReadWAVFloat32: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("format = %d Hz %d ch, want 16000 Hz 1 ch", rate, channels)
	}
	if len(samples) != len(in) {
		t.Fatalf("decoded %d samples, want %d", len(samples), len(in))
	}
	for i, want := range in {
		if math.Abs(float64(samples[i]-want)) > 0.01 {
			t.Errorf("sample %d = %v, want ~%v", i, samples[i], want)
		}
	}
}

// TestWAVWriterClamping значения вне [-1, 1] не должны переполнять int16
func TestWAVWriterClamping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clamp.wav")

	writer, err := NewWAVWriter(path, 16000, 1, 16)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}
	if err := writer.Write([]float32{2.0, -2.0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	writer.Close()

	samples, _, _, err := ReadWAVFloat32(path)
	if err != nil {
		t.Fatalf("ReadWAVFloat32: %v", err)
	}
	if samples[0] < 0.99 {
		t.Errorf("clamped positive sample = %v, want ~1.0", samples[0])
	}
	if samples[1] > -0.99 {
		t.Errorf("clamped negative sample = %v, want ~-1.0", samples[1])
	}
}

// TestWAVWriterHeader после Finalize в header лежат корректные длины RIFF
func TestWAVWriterHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "header.wav")

	writer, err := NewWAVWriter(path, 48000, 2, 16)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}
	writer.Write(make([]float32, 200))
	writer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 44+200*2 {
		t.Fatalf("file size = %d, want %d", len(data), 44+200*2)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}

	riffSize := binary.LittleEndian.Uint32(data[4:8])
	if riffSize != uint32(36+200*2) {
		t.Errorf("RIFF size = %d, want %d", riffSize, 36+200*2)
	}

	channels := binary.LittleEndian.Uint16(data[22:24])
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if channels != 2 {
		t.Errorf("channels = %d, want 2", channels)
	}
	if sampleRate != 48000 {
		t.Errorf("sample rate = %d, want 48000", sampleRate)
	}
	if dataSize != 200*2 {
		t.Errorf("data size = %d, want %d", dataSize, 200*2)
	}
}
