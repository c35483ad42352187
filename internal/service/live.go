package service

import (
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inferis995/netnote/ai"
	"github.com/inferis995/netnote/audio"
	"github.com/inferis995/netnote/session"
	"github.com/inferis995/netnote/store"
)

// Источники звука в событиях транскрипции
const (
	SourceMic    = "mic"
	SourceSystem = "system"
)

// tickInterval период планировщика живой транскрипции
const tickInterval = 3 * time.Second

// echoHistoryWindow сколько секунд системных сегментов держим для
// проверки эха
const echoHistoryWindow = 30.0

// TranscriptionUpdateEvent событие transcription-update для UI
type TranscriptionUpdateEvent struct {
	NoteID      string       `json:"note_id"`
	Segments    []ai.Segment `json:"segments"`
	IsFinal     bool         `json:"is_final"`
	AudioSource string       `json:"audio_source"`
}

// EventEmitter шлёт событие в UI-канал
type EventEmitter func(event string, payload interface{})

// LiveTranscriptionService планировщик живой транскрипции. Раз в три
// секунды дренирует оба живых буфера, гоняет два инференса параллельно,
// давит эхо микрофона от системного звука и батчем коммитит результат.
type LiveTranscriptionService struct {
	DB       *store.DB
	Recorder *session.Recorder
	Trans    *TranscriptionService

	emit EventEmitter

	isRunning atomic.Bool

	mu sync.Mutex
	// Оффсеты в секундах: глобальное время заметки для каждого источника
	micOffset    float64
	systemOffset float64
	// Агрегированные сегменты сессии (для финального результата Stop)
	segments []ai.Segment
	// Скользящая история системных сегментов для проверки эха
	recentSystem []ai.EchoRef

	noteID   string
	language string
}

// NewLiveTranscriptionService создаёт планировщик
func NewLiveTranscriptionService(db *store.DB, recorder *session.Recorder, trans *TranscriptionService, emit EventEmitter) *LiveTranscriptionService {
	return &LiveTranscriptionService{
		DB:       db,
		Recorder: recorder,
		Trans:    trans,
		emit:     emit,
	}
}

// IsRunning возвращает true пока цикл активен
func (s *LiveTranscriptionService) IsRunning() bool {
	return s.isRunning.Load()
}

// Start запускает живую транскрипцию для заметки.
// language — хинт языка ("" — настройка движка / автоопределение).
func (s *LiveTranscriptionService) Start(noteID, language string) error {
	if s.Trans.Engine() == nil {
		return ErrNoModelLoaded
	}

	if !s.isRunning.CompareAndSwap(false, true) {
		return ai.ErrAlreadyTranscribing
	}

	s.mu.Lock()
	s.micOffset = 0
	s.systemOffset = 0
	s.segments = nil
	s.recentSystem = nil
	s.noteID = noteID
	s.language = language
	s.mu.Unlock()

	go s.runLoop()

	log.Printf("Live transcription started: note=%s language=%q", noteID, language)
	return nil
}

// runLoop цикл планировщика: тик раз в 3 секунды до остановки.
// Пропущенный из-за медленного инференса тик не накапливается —
// следующий работает с тем, что лежит в буферах на его момент.
func (s *LiveTranscriptionService) runLoop() {
	defer s.isRunning.Store(false)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !s.isRunning.Load() {
			return
		}
		if !s.Recorder.IsRecording() {
			return
		}

		s.tick()
	}
}

// tick один проход конвейера. Ошибки не валят цикл: плохой тик
// логируется, сессия продолжается.
func (s *LiveTranscriptionService) tick() {
	engine := s.Trans.Engine()
	if engine == nil {
		return
	}

	s.mu.Lock()
	noteID := s.noteID
	language := s.language
	micOffset := s.micOffset
	systemOffset := s.systemOffset
	s.mu.Unlock()

	// Дренируем оба буфера независимо
	micSamples := audio.MicBuffer.Take()
	systemSamples := audio.SystemBuffer.Take()

	// Подготовка микрофона: моно, 16 кГц, VAD-отсечка. Системный звук
	// уже нормализован захватом, VAD к нему не применяется.
	var micReady []float32
	if len(micSamples) > 0 {
		rate, channels := audio.MicFormat()
		if rate > 0 && channels > 0 {
			mono := audio.DownmixMono(micSamples, int(channels))
			mono16k := audio.Resample(mono, int(rate), 16000)
			if ai.HasVoiceActivity(mono16k, ai.VADThreshold) {
				micReady = mono16k
			}
		}
	}

	// Параллельный инференс: оба таска работают с общей моделью,
	// каждый со своим whisper-контекстом
	var micResult, systemResult *ai.Result
	var wg sync.WaitGroup

	if len(micReady) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.TranscribeSamples(micReady, language, micOffset)
			if err != nil {
				log.Printf("Live mic transcription failed: %v", err)
				return
			}
			micResult = result
		}()
	}

	if len(systemSamples) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.TranscribeSamples(systemSamples, language, systemOffset)
			if err != nil {
				log.Printf("Live system transcription failed: %v", err)
				return
			}
			systemResult = result
		}()
	}

	wg.Wait()

	var dbRows []store.TranscriptRow
	var events []TranscriptionUpdateEvent

	// Сначала системный результат: он пополняет скользящую историю,
	// по которой дальше проверяется эхо микрофона
	var validSystem []ai.Segment
	if systemResult != nil && len(systemResult.Segments) > 0 {
		for _, seg := range systemResult.Segments {
			if ai.ShouldSkipSegment(seg.Text) {
				continue
			}
			validSystem = append(validSystem, seg)
		}

		s.mu.Lock()
		for _, seg := range validSystem {
			s.recentSystem = append(s.recentSystem, ai.EchoRef{
				Start: seg.StartTime,
				End:   seg.EndTime,
				Text:  seg.Text,
			})
		}
		cutoff := s.systemOffset - echoHistoryWindow
		kept := s.recentSystem[:0]
		for _, ref := range s.recentSystem {
			if ref.End > cutoff {
				kept = append(kept, ref)
			}
		}
		s.recentSystem = kept
		s.mu.Unlock()
	}

	// Снимок истории после обновления — против него идёт проверка эха
	s.mu.Lock()
	echoHistory := make([]ai.EchoRef, len(s.recentSystem))
	copy(echoHistory, s.recentSystem)
	s.mu.Unlock()

	// Микрофонный результат: skip-токены, потом эхо-фильтр
	if micResult != nil && len(micResult.Segments) > 0 {
		// Оффсет двигает последний сырой сегмент, даже если все
		// отфильтруются: время потока должно идти вровень со стеной
		last := micResult.Segments[len(micResult.Segments)-1]
		s.mu.Lock()
		s.micOffset = last.EndTime
		s.mu.Unlock()

		var validMic []ai.Segment
		for _, seg := range micResult.Segments {
			if ai.ShouldSkipSegment(seg.Text) {
				continue
			}
			if ai.IsEchoOfSystem(seg.Text, seg.StartTime, seg.EndTime, echoHistory) {
				continue
			}
			validMic = append(validMic, seg)
		}

		if len(validMic) > 0 {
			speaker := SpeakerSelf
			for _, seg := range validMic {
				sp := speaker
				dbRows = append(dbRows, store.TranscriptRow{
					NoteID:    noteID,
					StartTime: seg.StartTime,
					EndTime:   seg.EndTime,
					Text:      seg.Text,
					Speaker:   &sp,
				})
			}

			s.mu.Lock()
			s.segments = append(s.segments, validMic...)
			s.mu.Unlock()

			events = append(events, TranscriptionUpdateEvent{
				NoteID:      noteID,
				Segments:    validMic,
				IsFinal:     false,
				AudioSource: SourceMic,
			})
		}
	}

	// Системный оффсет тоже двигается по последнему сырому сегменту
	if systemResult != nil && len(systemResult.Segments) > 0 {
		last := systemResult.Segments[len(systemResult.Segments)-1]
		s.mu.Lock()
		s.systemOffset = last.EndTime
		s.mu.Unlock()
	}

	if len(validSystem) > 0 {
		for _, seg := range validSystem {
			sp := SpeakerOthers
			dbRows = append(dbRows, store.TranscriptRow{
				NoteID:    noteID,
				StartTime: seg.StartTime,
				EndTime:   seg.EndTime,
				Text:      seg.Text,
				Speaker:   &sp,
			})
		}

		s.mu.Lock()
		s.segments = append(s.segments, validSystem...)
		s.mu.Unlock()

		events = append(events, TranscriptionUpdateEvent{
			NoteID:      noteID,
			Segments:    validSystem,
			IsFinal:     false,
			AudioSource: SourceSystem,
		})
	}

	// Батч-коммит: до двух источников за тик, одна транзакция
	if len(dbRows) > 0 {
		if _, err := s.DB.AddTranscriptSegmentsBatch(dbRows); err != nil {
			log.Printf("Failed to batch save transcript segments: %v", err)
		}
	}

	if s.emit != nil {
		for _, event := range events {
			s.emit("transcription-update", event)
		}
	}
}

// Stop останавливает живую транскрипцию. Текущий тик, если он идёт,
// довершается. Возвращает агрегированный результат сессии и шлёт
// терминальное событие is_final=true с пустым списком сегментов.
func (s *LiveTranscriptionService) Stop(noteID string) *ai.Result {
	s.isRunning.Store(false)

	s.mu.Lock()
	segments := make([]ai.Segment, len(s.segments))
	copy(segments, s.segments)
	s.mu.Unlock()

	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		texts = append(texts, seg.Text)
	}

	if s.emit != nil {
		s.emit("transcription-update", TranscriptionUpdateEvent{
			NoteID:      noteID,
			Segments:    []ai.Segment{},
			IsFinal:     true,
			AudioSource: SourceMic,
		})
	}

	log.Printf("Live transcription stopped: note=%s segments=%d", noteID, len(segments))

	return &ai.Result{
		Segments: segments,
		FullText: strings.Join(texts, " "),
	}
}
