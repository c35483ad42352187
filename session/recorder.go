// Package session реализует машину состояний записи с паузой,
// возобновлением и продолжением заметки между запусками приложения.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/inferis995/netnote/audio"
)

// Phase фаза записи
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseRecording:
		return "recording"
	case PhasePaused:
		return "paused"
	default:
		return "idle"
	}
}

// PhaseFromUint8 восстанавливает фазу из атомарного представления
func PhaseFromUint8(v uint8) Phase {
	switch v {
	case 1:
		return PhaseRecording
	case 2:
		return PhasePaused
	default:
		return PhaseIdle
	}
}

// Recorder состояние сессии записи. Счётчики лежат в атомиках, потому что
// их читают callback-потоки захвата и планировщик живой транскрипции;
// якорь времени и id заметки — под мьютексом.
//
// Инвариант: в процессе не больше одной сессии в фазе Recording.
type Recorder struct {
	phase          atomic.Uint32
	segmentIndex   atomic.Uint32
	startOffsetMs  atomic.Int64
	segmentDBID    atomic.Int64
	recordingFlag  atomic.Bool

	mu           sync.Mutex
	segmentStart time.Time
	noteID       string
}

// NewRecorder создаёт рекордер в фазе Idle
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Phase возвращает текущую фазу
func (r *Recorder) Phase() Phase {
	return PhaseFromUint8(uint8(r.phase.Load()))
}

func (r *Recorder) setPhase(p Phase) {
	r.phase.Store(uint32(p))
}

// IsRecording возвращает true в фазе Recording
func (r *Recorder) IsRecording() bool {
	return r.recordingFlag.Load()
}

// Start переводит Idle -> Recording для нового сегмента.
// Используется и для start, и для continue: вызывающий передаёт
// индекс сегмента и оффсет, выведенные из базы.
func (r *Recorder) Start(noteID string, segmentIndex uint32, startOffsetMs, segmentDBID int64) error {
	if r.Phase() == PhaseRecording {
		return audio.ErrAlreadyRecording
	}

	r.mu.Lock()
	r.noteID = noteID
	r.segmentStart = time.Now()
	r.mu.Unlock()

	r.segmentIndex.Store(segmentIndex)
	r.startOffsetMs.Store(startOffsetMs)
	r.segmentDBID.Store(segmentDBID)
	r.recordingFlag.Store(true)
	r.setPhase(PhaseRecording)

	return nil
}

// Pause переводит Recording -> Paused.
// Возвращает длительность закрытого сегмента и его id в базе.
func (r *Recorder) Pause() (durationMs, segmentDBID int64, err error) {
	if r.Phase() != PhaseRecording {
		return 0, 0, audio.ErrNotRecording
	}

	durationMs = r.SegmentElapsedMs()
	segmentDBID = r.segmentDBID.Load()

	r.recordingFlag.Store(false)
	r.setPhase(PhasePaused)

	return durationMs, segmentDBID, nil
}

// Resume переводит Paused -> Recording для следующего сегмента
func (r *Recorder) Resume(segmentIndex uint32, startOffsetMs, segmentDBID int64) error {
	if r.Phase() != PhasePaused {
		return audio.ErrNotPaused
	}

	r.mu.Lock()
	r.segmentStart = time.Now()
	r.mu.Unlock()

	r.segmentIndex.Store(segmentIndex)
	r.startOffsetMs.Store(startOffsetMs)
	r.segmentDBID.Store(segmentDBID)
	r.recordingFlag.Store(true)
	r.setPhase(PhaseRecording)

	return nil
}

// Stop переводит Recording|Paused -> Idle и сбрасывает все счётчики.
// Возвращает длительность активного сегмента и его id; из Paused
// активного сегмента нет и оба значения нулевые.
func (r *Recorder) Stop() (durationMs, segmentDBID int64, wasRecording bool) {
	wasRecording = r.Phase() == PhaseRecording
	if wasRecording {
		durationMs = r.SegmentElapsedMs()
		segmentDBID = r.segmentDBID.Load()
	}

	r.recordingFlag.Store(false)
	r.setPhase(PhaseIdle)
	r.resetForNewSession()

	return durationMs, segmentDBID, wasRecording
}

// resetForNewSession обнуляет счётчики сессии
func (r *Recorder) resetForNewSession() {
	r.segmentIndex.Store(0)
	r.startOffsetMs.Store(0)
	r.segmentDBID.Store(0)

	r.mu.Lock()
	r.segmentStart = time.Time{}
	r.noteID = ""
	r.mu.Unlock()
}

// SegmentElapsedMs миллисекунды с момента старта текущего сегмента
func (r *Recorder) SegmentElapsedMs() int64 {
	r.mu.Lock()
	start := r.segmentStart
	r.mu.Unlock()

	if start.IsZero() {
		return 0
	}
	return time.Since(start).Milliseconds()
}

// NoteID возвращает id записываемой заметки ("" если нет сессии)
func (r *Recorder) NoteID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.noteID
}

// SegmentIndex индекс активного сегмента
func (r *Recorder) SegmentIndex() uint32 {
	return r.segmentIndex.Load()
}

// StartOffsetMs оффсет активного сегмента от начала заметки
func (r *Recorder) StartOffsetMs() int64 {
	return r.startOffsetMs.Load()
}

// SegmentDBID id активного сегмента в базе
func (r *Recorder) SegmentDBID() int64 {
	return r.segmentDBID.Load()
}
