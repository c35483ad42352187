// Package service связывает захват, машину состояний, базу и движок
// транскрипции в командные операции приложения.
package service

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/inferis995/netnote/audio"
	"github.com/inferis995/netnote/session"
	"github.com/inferis995/netnote/store"
)

// DualRecordingStatus пути активной записи
type DualRecordingStatus struct {
	MicPath      string  `json:"micPath"`
	SystemPath   *string `json:"systemPath,omitempty"`
	SegmentIndex int     `json:"segmentIndex"`
}

// RecordingService управляет двухканальной записью с сегментами.
// Владеет машиной состояний и обоими захватами.
type RecordingService struct {
	Recorder *session.Recorder
	DB       *store.DB

	mic    *audio.MicCapture
	system audio.SystemCapture

	recordingsDir string
	mu            sync.Mutex
}

// NewRecordingService создаёт сервис записи
func NewRecordingService(db *store.DB, mic *audio.MicCapture, system audio.SystemCapture, recordingsDir string) *RecordingService {
	return &RecordingService{
		Recorder:      session.NewRecorder(),
		DB:            db,
		mic:           mic,
		system:        system,
		recordingsDir: recordingsDir,
	}
}

// openSegment открывает новый сегмент: стартует оба захвата и заводит
// строку в базе. duration_ms остаётся NULL до закрытия сегмента.
func (s *RecordingService) openSegment(noteID string, segmentIndex int, startOffsetMs int64) (int64, string, *string, error) {
	if err := os.MkdirAll(s.recordingsDir, 0755); err != nil {
		return 0, "", nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	micPath := session.MicSegmentPath(s.recordingsDir, noteID, uint32(segmentIndex))
	if err := s.mic.Start(micPath); err != nil {
		return 0, "", nil, err
	}

	// Системный звук best-effort: без поддержки платформы или без
	// разрешения пишем только микрофон
	var systemPath *string
	if audio.IsSystemAudioSupported() {
		if ok, err := s.system.HasPermission(); err != nil {
			log.Printf("System audio permission check failed: %v", err)
		} else if !ok {
			log.Println("System audio permission not granted, recording mic only")
		} else {
			path := session.SystemSegmentPath(s.recordingsDir, noteID, uint32(segmentIndex))
			if err := s.system.Start(path); err != nil {
				log.Printf("Failed to start system audio capture: %v", err)
			} else {
				systemPath = &path
			}
		}
	}

	segmentID, err := s.DB.AddAudioSegment(noteID, segmentIndex, micPath, systemPath, startOffsetMs)
	if err != nil {
		s.stopCaptures()
		return 0, "", nil, err
	}

	return segmentID, micPath, systemPath, nil
}

// stopCaptures останавливает оба захвата, возвращая их пути
func (s *RecordingService) stopCaptures() (micPath string, systemPath string) {
	if path, err := s.mic.Stop(); err == nil {
		micPath = path
	} else if err != audio.ErrNotRecording {
		log.Printf("Failed to stop mic capture: %v", err)
	}

	if s.system.IsCapturing() {
		if path, err := s.system.Stop(); err == nil {
			systemPath = path
		} else {
			log.Printf("Failed to stop system capture: %v", err)
		}
	}

	return micPath, systemPath
}

// StartDualRecording начинает запись заметки: Idle -> Recording,
// сегмент 0 с нулевым оффсетом
func (s *RecordingService) StartDualRecording(noteID string) (*DualRecordingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Recorder.Phase() == session.PhaseRecording {
		return nil, audio.ErrAlreadyRecording
	}

	segmentID, micPath, systemPath, err := s.openSegment(noteID, 0, 0)
	if err != nil {
		return nil, err
	}

	if err := s.Recorder.Start(noteID, 0, 0, segmentID); err != nil {
		s.stopCaptures()
		return nil, err
	}

	// Буферы живут только в Recording и начинают сессию пустыми
	audio.MicBuffer.Clear()
	audio.SystemBuffer.Clear()

	log.Printf("Dual recording started: note=%s segment=0", noteID)
	return &DualRecordingStatus{MicPath: micPath, SystemPath: systemPath}, nil
}

// PauseDualRecording ставит запись на паузу: Recording -> Paused,
// текущий сегмент закрывается с длительностью
func (s *RecordingService) PauseDualRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	durationMs, segmentID, err := s.Recorder.Pause()
	if err != nil {
		return err
	}

	s.stopCaptures()

	if err := s.DB.UpdateSegmentDuration(segmentID, durationMs); err != nil {
		log.Printf("Failed to write segment duration: %v", err)
	}

	log.Printf("Recording paused: segment=%d duration=%dms", s.Recorder.SegmentIndex(), durationMs)
	return nil
}

// ResumeDualRecording снимает с паузы: Paused -> Recording, новый
// сегмент со следующим индексом и оффсетом = сумме прошлых длительностей
func (s *RecordingService) ResumeDualRecording(noteID string) (*DualRecordingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Recorder.Phase() != session.PhasePaused {
		return nil, audio.ErrNotPaused
	}

	segmentIndex, err := s.DB.NextSegmentIndex(noteID)
	if err != nil {
		return nil, err
	}
	startOffsetMs, err := s.DB.TotalSegmentDuration(noteID)
	if err != nil {
		return nil, err
	}

	segmentID, micPath, systemPath, err := s.openSegment(noteID, segmentIndex, startOffsetMs)
	if err != nil {
		return nil, err
	}

	if err := s.Recorder.Resume(uint32(segmentIndex), startOffsetMs, segmentID); err != nil {
		s.stopCaptures()
		return nil, err
	}

	log.Printf("Recording resumed: note=%s segment=%d offset=%dms", noteID, segmentIndex, startOffsetMs)
	return &DualRecordingStatus{MicPath: micPath, SystemPath: systemPath, SegmentIndex: segmentIndex}, nil
}

// StopDualRecording полностью останавливает запись: * -> Idle.
// Закрывает сегмент, финализирует WAV файлы и микширует playback файл
// когда есть обе дорожки.
func (s *RecordingService) StopDualRecording(noteID string) (*store.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Recorder.Phase() == session.PhaseIdle {
		return nil, audio.ErrNotRecording
	}

	durationMs, segmentID, wasRecording := s.Recorder.Stop()

	var micPath, systemPath string
	if wasRecording {
		micPath, systemPath = s.stopCaptures()

		if err := s.DB.UpdateSegmentDuration(segmentID, durationMs); err != nil {
			log.Printf("Failed to write segment duration: %v", err)
		}
	}

	// Из Paused активного захвата нет — только финализация

	if micPath != "" && systemPath != "" {
		playbackPath := session.PlaybackPath(s.recordingsDir, noteID)
		if err := audio.MixWAVFiles(micPath, systemPath, playbackPath); err != nil {
			log.Printf("Failed to mix playback file: %v", err)
		} else if err := s.DB.SetNoteAudioPath(noteID, playbackPath); err != nil {
			log.Printf("Failed to save playback path: %v", err)
		}
	}

	audio.MicBuffer.Clear()
	audio.SystemBuffer.Clear()

	log.Printf("Dual recording stopped: note=%s", noteID)
	return s.DB.GetNote(noteID)
}

// ContinueNoteRecording продолжает завершённую заметку: Idle -> Recording,
// индекс и оффсет выводятся из базы, ended_at сбрасывается
func (s *RecordingService) ContinueNoteRecording(noteID string) (*DualRecordingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Recorder.Phase() == session.PhaseRecording {
		return nil, audio.ErrAlreadyRecording
	}

	note, err := s.DB.GetNote(noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, fmt.Errorf("note not found: %s", noteID)
	}

	if err := s.DB.ReopenNote(noteID); err != nil {
		return nil, err
	}

	segmentIndex, err := s.DB.NextSegmentIndex(noteID)
	if err != nil {
		return nil, err
	}
	startOffsetMs, err := s.DB.TotalSegmentDuration(noteID)
	if err != nil {
		return nil, err
	}

	segmentID, micPath, systemPath, err := s.openSegment(noteID, segmentIndex, startOffsetMs)
	if err != nil {
		return nil, err
	}

	if err := s.Recorder.Start(noteID, uint32(segmentIndex), startOffsetMs, segmentID); err != nil {
		s.stopCaptures()
		return nil, err
	}

	audio.MicBuffer.Clear()
	audio.SystemBuffer.Clear()

	log.Printf("Note recording continued: note=%s segment=%d offset=%dms", noteID, segmentIndex, startOffsetMs)
	return &DualRecordingStatus{MicPath: micPath, SystemPath: systemPath, SegmentIndex: segmentIndex}, nil
}

// IsDualRecording возвращает true в фазе Recording
func (s *RecordingService) IsDualRecording() bool {
	return s.Recorder.Phase() == session.PhaseRecording
}

// RecordingPhase текущая фаза записи
func (s *RecordingService) RecordingPhase() string {
	return s.Recorder.Phase().String()
}

// AudioLevels текущие RMS-уровни для VU-метров
func (s *RecordingService) AudioLevels() (mic, system float64) {
	return float64(audio.MicLevel()), float64(audio.SystemLevel())
}

// DeleteNote удаляет заметку вместе с WAV файлами на диске
func (s *RecordingService) DeleteNote(noteID string) error {
	paths, err := s.DB.DeleteNote(noteID)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove recording file %s: %v", p, err)
		}
	}
	return nil
}
