package service

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/inferis995/netnote/ai"
	"github.com/inferis995/netnote/models"
	"github.com/inferis995/netnote/store"
)

// Метки спикеров двухканальной записи
const (
	SpeakerSelf   = "self"   // микрофон — сам пользователь
	SpeakerOthers = "others" // системный звук — остальные участники
)

// ErrNoModelLoaded модель не загружена
var ErrNoModelLoaded = errors.New("no model loaded")

// DualTranscriptionResult результат транскрипции пары файлов
type DualTranscriptionResult struct {
	MicResult     *ai.Result `json:"micResult"`
	SystemResult  *ai.Result `json:"systemResult,omitempty"`
	TotalSegments int        `json:"totalSegments"`
}

// TranscriptionService офлайн-транскрипция готовых WAV файлов и
// управление загруженной моделью
type TranscriptionService struct {
	DB       *store.DB
	ModelMgr *models.Manager

	mu          sync.Mutex
	engine      *ai.Engine
	currentSize models.Size
	language    string
}

// NewTranscriptionService создаёт сервис транскрипции
func NewTranscriptionService(db *store.DB, modelMgr *models.Manager, language string) *TranscriptionService {
	return &TranscriptionService{
		DB:       db,
		ModelMgr: modelMgr,
		language: language,
	}
}

// LoadModel загружает модель указанного размера. Повторная загрузка
// той же модели — no-op.
func (s *TranscriptionService) LoadModel(size models.Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil && s.currentSize == size {
		return nil
	}

	if !s.ModelMgr.IsDownloaded(size) {
		return fmt.Errorf("model %s is not downloaded", size)
	}

	engine, err := ai.NewEngine(s.ModelMgr.ModelPath(size), s.language)
	if err != nil {
		return err
	}

	if s.engine != nil {
		s.engine.Close()
	}
	s.engine = engine
	s.currentSize = size

	return nil
}

// LoadedModel возвращает размер загруженной модели
func (s *TranscriptionService) LoadedModel() (models.Size, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSize, s.engine != nil
}

// Engine возвращает загруженный движок (nil если модели нет)
func (s *TranscriptionService) Engine() *ai.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// UnloadIfCurrent выгружает движок перед удалением модели
func (s *TranscriptionService) UnloadIfCurrent(size models.Size) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil && s.currentSize == size {
		s.engine.Close()
		s.engine = nil
		s.currentSize = ""
	}
}

// IsTranscribing возвращает true пока идёт офлайн-транскрипция
func (s *TranscriptionService) IsTranscribing() bool {
	engine := s.Engine()
	return engine != nil && engine.IsTranscribing()
}

// saveSegments сохраняет сегменты с меткой спикера, пропуская шумовые
func (s *TranscriptionService) saveSegments(noteID string, segments []ai.Segment, speaker string) (int, error) {
	rows := make([]store.TranscriptRow, 0, len(segments))
	for _, seg := range segments {
		if ai.ShouldSkipSegment(seg.Text) {
			continue
		}
		sp := speaker
		rows = append(rows, store.TranscriptRow{
			NoteID:    noteID,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Text:      seg.Text,
			Speaker:   &sp,
		})
	}
	return s.DB.AddTranscriptSegmentsBatch(rows)
}

// TranscribeAudio транскрибирует готовый WAV файл и замещает транскрипт
// заметки результатом. Явная ре-транскрипция заменяет сегменты целиком.
func (s *TranscriptionService) TranscribeAudio(audioPath, noteID string, speaker *string) (*ai.Result, error) {
	engine := s.Engine()
	if engine == nil {
		return nil, ErrNoModelLoaded
	}

	result, err := engine.Transcribe(audioPath)
	if err != nil {
		return nil, err
	}

	if err := s.DB.DeleteTranscriptSegments(noteID); err != nil {
		return nil, err
	}

	label := SpeakerSelf
	if speaker != nil {
		label = *speaker
	}
	if _, err := s.saveSegments(noteID, result.Segments, label); err != nil {
		return nil, err
	}

	return result, nil
}

// TranscribeDualAudio транскрибирует пару файлов записи: микрофон как
// "self", системный звук как "others". Ошибка системной дорожки не
// фатальна — микрофонная часть сохраняется.
func (s *TranscriptionService) TranscribeDualAudio(micPath string, systemPath *string, noteID string) (*DualTranscriptionResult, error) {
	engine := s.Engine()
	if engine == nil {
		return nil, ErrNoModelLoaded
	}

	if err := s.DB.DeleteTranscriptSegments(noteID); err != nil {
		return nil, err
	}

	micResult, err := engine.Transcribe(micPath)
	if err != nil {
		return nil, err
	}

	total, err := s.saveSegments(noteID, micResult.Segments, SpeakerSelf)
	if err != nil {
		return nil, err
	}

	out := &DualTranscriptionResult{MicResult: micResult, TotalSegments: total}

	if systemPath != nil && *systemPath != "" {
		systemResult, err := engine.Transcribe(*systemPath)
		if err != nil {
			log.Printf("Failed to transcribe system audio: %v", err)
			return out, nil
		}
		n, err := s.saveSegments(noteID, systemResult.Segments, SpeakerOthers)
		if err != nil {
			return nil, err
		}
		out.SystemResult = systemResult
		out.TotalSegments += n
	}

	return out, nil
}
