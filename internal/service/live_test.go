package service

import (
	"path/filepath"
	"testing"

	"github.com/inferis995/netnote/models"
	"github.com/inferis995/netnote/session"
	"github.com/inferis995/netnote/store"
)

func newTestLiveService(t *testing.T, emit EventEmitter) *LiveTranscriptionService {
	t.Helper()

	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	modelMgr, err := models.NewManager(filepath.Join(dir, "models"))
	if err != nil {
		t.Fatalf("models.NewManager: %v", err)
	}

	trans := NewTranscriptionService(db, modelMgr, "auto")
	return NewLiveTranscriptionService(db, session.NewRecorder(), trans, emit)
}

// TestLiveStartWithoutModel без загруженной модели запуск запрещён
func TestLiveStartWithoutModel(t *testing.T) {
	live := newTestLiveService(t, nil)

	if err := live.Start("n1", ""); err != ErrNoModelLoaded {
		t.Errorf("Start = %v, want ErrNoModelLoaded", err)
	}
	if live.IsRunning() {
		t.Error("failed Start must not leave the running flag set")
	}
}

// TestLiveStopEmitsFinalEvent терминальное событие: is_final=true,
// пустой список сегментов
func TestLiveStopEmitsFinalEvent(t *testing.T) {
	var events []TranscriptionUpdateEvent
	emit := func(event string, payload interface{}) {
		if event != "transcription-update" {
			t.Errorf("event = %q, want transcription-update", event)
		}
		if update, ok := payload.(TranscriptionUpdateEvent); ok {
			events = append(events, update)
		}
	}

	live := newTestLiveService(t, emit)
	result := live.Stop("n1")

	if result == nil || result.FullText != "" || len(result.Segments) != 0 {
		t.Errorf("empty session result = %+v", result)
	}

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	final := events[0]
	if !final.IsFinal {
		t.Error("terminal event must have is_final=true")
	}
	if final.Segments == nil || len(final.Segments) != 0 {
		t.Errorf("terminal event segments = %v, want empty non-nil list", final.Segments)
	}
	if final.NoteID != "n1" {
		t.Errorf("terminal event noteID = %q", final.NoteID)
	}
}
