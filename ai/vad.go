package ai

import (
	"strings"

	"github.com/inferis995/netnote/audio"
)

// VADThreshold порог RMS, ниже которого микрофонный чанк считается
// тишиной. Отсечка строгая: RMS ровно 0.01 отбрасывается.
const VADThreshold = 0.01

// skipTokens артефакты Whisper на тишине и шуме, которые нельзя
// сохранять в транскрипт
var skipTokens = []string{
	"[blank_audio]",
	"[inaudible]",
	"[ inaudible ]",
	"[silence]",
	"[music]",
	"[applause]",
	"[laughter]",
}

// ShouldSkipSegment возвращает true для сегментов, которые не нужно
// сохранять: пустой текст либо шумовой маркер (без учёта регистра)
func ShouldSkipSegment(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	lower := strings.ToLower(text)
	for _, token := range skipTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// HasVoiceActivity энергетический VAD: true если RMS выше порога.
// Отсекает и тишину, и галлюцинации Whisper на ней, и лишний инференс.
func HasVoiceActivity(samples []float32, threshold float64) bool {
	if len(samples) == 0 {
		return false
	}
	return audio.CalculateRMS(samples) > threshold
}

// EchoRef сегмент системного звука из скользящей истории для проверки эха
type EchoRef struct {
	Start float64
	End   float64
	Text  string
}

// IsEchoOfSystem быстрая проверка: является ли микрофонный сегмент эхом
// системного звука, который микрофон переснял с колонок.
//
// Сегмент считается эхом если есть системный сегмент с перекрытием
// интервалов не меньше секунды на таймлинии заметки, у которого из
// первых пяти слов (lowercase) совпадает минимум три — либо два, когда
// в микрофонном сегменте не больше трёх слов.
func IsEchoOfSystem(micText string, micStart, micEnd float64, systemSegments []EchoRef) bool {
	if len(systemSegments) == 0 {
		return false
	}

	micWords := firstWords(micText, 5)
	if len(micWords) == 0 {
		return false
	}

	for _, sys := range systemSegments {
		overlapStart := micStart
		if sys.Start > overlapStart {
			overlapStart = sys.Start
		}
		overlapEnd := micEnd
		if sys.End < overlapEnd {
			overlapEnd = sys.End
		}
		if overlapEnd-overlapStart < 1.0 {
			continue
		}

		sysWords := firstWords(sys.Text, 5)

		matches := 0
		for _, w := range micWords {
			if containsWord(sysWords, w) {
				matches++
			}
		}

		if matches >= 3 || (matches >= 2 && len(micWords) <= 3) {
			return true
		}
	}

	return false
}

func firstWords(text string, n int) []string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) > n {
		words = words[:n]
	}
	return words
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
