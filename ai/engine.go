// Package ai оборачивает whisper.cpp в движок транскрипции
package ai

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/inferis995/netnote/audio"
)

// Ошибки движка транскрипции
var (
	ErrAlreadyTranscribing = errors.New("already transcribing")
	ErrModelNotFound       = errors.New("model file not found")
)

// Segment распознанный отрезок с таймстемпами в секундах
type Segment struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
}

// Result результат транскрипции
type Result struct {
	Segments []Segment `json:"segments"`
	FullText string    `json:"fullText"`
	Language string    `json:"language,omitempty"`
}

// Engine долгоживущий контекст whisper. Модель загружается один раз и
// шарится между офлайн-транскрипцией и живым планировщиком: каждый вызов
// создаёт свой whisper-контекст, поэтому параллельные инференсы не
// мешают друг другу. Флаг isTranscribing защищает только офлайн-путь —
// он нереентерабелен по контракту.
type Engine struct {
	model     whisper.Model
	modelPath string
	language  string

	isTranscribing atomic.Bool
}

// NewEngine загружает модель из файла. language — хинт ("auto" для
// автоопределения).
func NewEngine(modelPath, language string) (*Engine, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model: %w", err)
	}

	if language == "" {
		language = "auto"
	}

	log.Printf("Whisper model loaded: %s (language=%s)", modelPath, language)

	return &Engine{
		model:     model,
		modelPath: modelPath,
		language:  language,
	}, nil
}

// ModelPath возвращает путь загруженной модели
func (e *Engine) ModelPath() string {
	return e.modelPath
}

// IsTranscribing возвращает true пока идёт офлайн-транскрипция
func (e *Engine) IsTranscribing() bool {
	return e.isTranscribing.Load()
}

// Close выгружает модель
func (e *Engine) Close() {
	if e.model != nil {
		e.model.Close()
		e.model = nil
	}
}

// numThreads потоки инференса: available parallelism, но не больше 8
func numThreads() uint {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return uint(n)
}

// Transcribe транскрибирует готовый WAV файл целиком.
// Нереентерабелен: повторный вызов во время работы возвращает
// ErrAlreadyTranscribing.
func (e *Engine) Transcribe(wavPath string) (*Result, error) {
	if !e.isTranscribing.CompareAndSwap(false, true) {
		return nil, ErrAlreadyTranscribing
	}
	defer e.isTranscribing.Store(false)

	samples, sampleRate, channels, err := audio.ReadWAVFloat32(wavPath)
	if err != nil {
		return nil, err
	}

	mono := audio.DownmixMono(samples, channels)
	resampled := audio.Resample(mono, sampleRate, whisper.SampleRate)

	return e.TranscribeSamples(resampled, "", 0)
}

// TranscribeSamples прогоняет 16 кГц моно семплы через whisper.
// timeOffset прибавляется к каждому таймстемпу — так живой планировщик
// нумерует сегменты в глобальном времени заметки. language перекрывает
// хинт движка ("" — использовать настройку движка).
//
// Безопасен для параллельных вызовов: каждый вызов работает со своим
// whisper-контекстом поверх общей модели.
func (e *Engine) TranscribeSamples(samples []float32, language string, timeOffset float64) (*Result, error) {
	if len(samples) == 0 {
		return &Result{}, nil
	}

	ctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper context: %w", err)
	}

	lang := language
	if lang == "" {
		lang = e.language
	}
	if err := ctx.SetLanguage(lang); err != nil {
		// Немультиязычные модели не принимают хинт — не фатально
		log.Printf("SetLanguage(%s): %v", lang, err)
	}
	ctx.SetTranslate(false)
	ctx.SetTokenTimestamps(true)
	ctx.SetThreads(numThreads())

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	result := &Result{Language: lang}
	var fullText []string

	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			break
		}

		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		fullText = append(fullText, text)
		result.Segments = append(result.Segments, Segment{
			StartTime: seg.Start.Seconds() + timeOffset,
			EndTime:   seg.End.Seconds() + timeOffset,
			Text:      text,
		})
	}

	result.FullText = strings.Join(fullText, " ")
	return result, nil
}
