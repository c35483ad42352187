package ai

import (
	"math"
	"testing"
)

// TestShouldSkipSegment проверяет фильтрацию шумовых маркеров Whisper
func TestShouldSkipSegment(t *testing.T) {
	tests := []struct {
		name string
		text string
		skip bool
	}{
		{"обычный текст", "hello world", false},
		{"пустая строка", "", true},
		{"только пробелы", "   \t  ", true},
		{"blank audio", "[BLANK_AUDIO]", true},
		{"blank audio в нижнем регистре", "[blank_audio]", true},
		{"inaudible", "[INAUDIBLE]", true},
		{"inaudible с пробелами", "[ INAUDIBLE ]", true},
		{"silence", "[SILENCE]", true},
		{"music", "[Music]", true},
		{"applause", "[applause]", true},
		{"laughter", "[LAUGHTER]", true},
		{"маркер внутри текста", "ну что [BLANK_AUDIO] поехали", true},
		{"квадратные скобки сами по себе", "we saw [the bridge] today", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldSkipSegment(tt.text); got != tt.skip {
				t.Errorf("ShouldSkipSegment(%q) = %v, want %v", tt.text, got, tt.skip)
			}
		})
	}
}

// constSamples возвращает сигнал с заданным RMS
func constSamples(rms float64, n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(rms)
	}
	return samples
}

// TestHasVoiceActivity порог строгий: RMS ровно 0.01 отбрасывается
func TestHasVoiceActivity(t *testing.T) {
	tests := []struct {
		name   string
		rms    float64
		expect bool
	}{
		{"тишина", 0.0, false},
		{"ниже порога", 0.005, false},
		{"ровно на пороге", 0.01, false},
		{"чуть выше порога", 0.011, true},
		{"речь", 0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := constSamples(tt.rms, 1600)
			if got := HasVoiceActivity(samples, VADThreshold); got != tt.expect {
				t.Errorf("HasVoiceActivity(rms=%v) = %v, want %v", tt.rms, got, tt.expect)
			}
		})
	}
}

func TestHasVoiceActivityEmpty(t *testing.T) {
	if HasVoiceActivity(nil, VADThreshold) {
		t.Error("empty samples must not count as voice activity")
	}
}

// TestHasVoiceActivitySine синусоида с известным RMS
func TestHasVoiceActivitySine(t *testing.T) {
	// Амплитуда 0.5 -> RMS около 0.35
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	if !HasVoiceActivity(samples, VADThreshold) {
		t.Error("sine wave with amplitude 0.5 must pass the VAD gate")
	}
}

// TestIsEchoOfSystem пороги эхо-детектора
func TestIsEchoOfSystem(t *testing.T) {
	tests := []struct {
		name     string
		micText  string
		micStart float64
		micEnd   float64
		system   []EchoRef
		echo     bool
	}{
		{
			name:     "пустая история",
			micText:  "the quick brown fox",
			micStart: 0, micEnd: 3,
			system: nil,
			echo:   false,
		},
		{
			name:     "полное совпадение с перекрытием",
			micText:  "the quick brown fox jumps",
			micStart: 0, micEnd: 3,
			system: []EchoRef{{Start: 0.5, End: 3.5, Text: "The quick brown fox jumps over"}},
			echo:   true,
		},
		{
			name:     "совпадение без перекрытия по времени",
			micText:  "the quick brown fox jumps",
			micStart: 0, micEnd: 3,
			system: []EchoRef{{Start: 10, End: 13, Text: "the quick brown fox jumps"}},
			echo:   false,
		},
		{
			name:     "перекрытие меньше секунды",
			micText:  "the quick brown fox jumps",
			micStart: 0, micEnd: 3,
			system: []EchoRef{{Start: 2.5, End: 5.5, Text: "the quick brown fox jumps"}},
			echo:   false,
		},
		{
			name:     "три совпадения из пяти",
			micText:  "the quick brown cat sleeps",
			micStart: 0, micEnd: 3,
			system: []EchoRef{{Start: 0, End: 3, Text: "the quick brown fox jumps"}},
			echo:   true,
		},
		{
			name:     "два совпадения при четырёх словах — не эхо",
			micText:  "the quick cat sleeps",
			micStart: 0, micEnd: 3,
			system: []EchoRef{{Start: 0, End: 3, Text: "the quick brown fox jumps"}},
			echo:   false,
		},
		{
			name:     "два совпадения при трёх словах — эхо",
			micText:  "the quick cat",
			micStart: 0, micEnd: 3,
			system: []EchoRef{{Start: 0, End: 3, Text: "the quick brown fox jumps"}},
			echo:   true,
		},
		{
			name:     "регистр не важен",
			micText:  "The Quick BROWN fox",
			micStart: 0, micEnd: 3,
			system: []EchoRef{{Start: 0, End: 3, Text: "the quick brown fox"}},
			echo:   true,
		},
		{
			name:     "порядок слов не важен",
			micText:  "fox brown quick says hi",
			micStart: 0, micEnd: 3,
			system: []EchoRef{{Start: 0, End: 3, Text: "the quick brown fox jumps"}},
			echo:   true,
		},
		{
			name:     "сравниваются только первые пять слов",
			micText:  "one two three four five the quick brown",
			micStart: 0, micEnd: 3,
			system: []EchoRef{{Start: 0, End: 3, Text: "six seven eight nine ten the quick brown"}},
			echo:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsEchoOfSystem(tt.micText, tt.micStart, tt.micEnd, tt.system)
			if got != tt.echo {
				t.Errorf("IsEchoOfSystem(%q) = %v, want %v", tt.micText, got, tt.echo)
			}
		})
	}
}
