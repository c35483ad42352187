package store

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestNotesCRUD(t *testing.T) {
	db := openTestDB(t)

	note, err := db.CreateNote("n1", "Standup", strPtr("daily"), nil)
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if note.ID != "n1" || note.Title != "Standup" {
		t.Errorf("created note = %+v", note)
	}

	got, err := db.GetNote("n1")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got == nil || got.Title != "Standup" || got.Description == nil || *got.Description != "daily" {
		t.Errorf("GetNote = %+v", got)
	}
	if got.EndedAt != nil {
		t.Error("new note must not have ended_at")
	}

	missing, err := db.GetNote("nope")
	if err != nil {
		t.Fatalf("GetNote missing: %v", err)
	}
	if missing != nil {
		t.Error("missing note must be nil")
	}

	if err := db.UpdateNote("n1", strPtr("Renamed"), nil, strPtr("alice, bob")); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	got, _ = db.GetNote("n1")
	if got.Title != "Renamed" || got.Participants == nil || *got.Participants != "alice, bob" {
		t.Errorf("after update: %+v", got)
	}
	// COALESCE: описание не затёрлось
	if got.Description == nil || *got.Description != "daily" {
		t.Errorf("description lost on update: %+v", got.Description)
	}

	notes, err := db.ListNotes()
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 1 {
		t.Errorf("ListNotes len = %d, want 1", len(notes))
	}
}

func TestEndAndReopenNote(t *testing.T) {
	db := openTestDB(t)
	db.CreateNote("n1", "t", nil, nil)

	if err := db.EndNote("n1"); err != nil {
		t.Fatalf("EndNote: %v", err)
	}
	note, _ := db.GetNote("n1")
	if note.EndedAt == nil {
		t.Fatal("ended_at not set")
	}

	if err := db.ReopenNote("n1"); err != nil {
		t.Fatalf("ReopenNote: %v", err)
	}
	note, _ = db.GetNote("n1")
	if note.EndedAt != nil {
		t.Fatal("ended_at not cleared")
	}
}

func TestAudioSegments(t *testing.T) {
	db := openTestDB(t)
	db.CreateNote("n1", "t", nil, nil)

	// У пустой заметки следующий индекс 0, длительность 0
	idx, err := db.NextSegmentIndex("n1")
	if err != nil || idx != 0 {
		t.Fatalf("NextSegmentIndex = %d, %v; want 0", idx, err)
	}
	total, err := db.TotalSegmentDuration("n1")
	if err != nil || total != 0 {
		t.Fatalf("TotalSegmentDuration = %d, %v; want 0", total, err)
	}

	id0, err := db.AddAudioSegment("n1", 0, "/rec/n1_mic_seg0.wav", strPtr("/rec/n1_system_seg0.wav"), 0)
	if err != nil {
		t.Fatalf("AddAudioSegment: %v", err)
	}

	// Незакрытый сегмент: индекс уже занят, вклад в длительность нулевой
	idx, _ = db.NextSegmentIndex("n1")
	if idx != 1 {
		t.Errorf("NextSegmentIndex = %d, want 1", idx)
	}
	total, _ = db.TotalSegmentDuration("n1")
	if total != 0 {
		t.Errorf("TotalSegmentDuration with open segment = %d, want 0", total)
	}

	if err := db.UpdateSegmentDuration(id0, 4000); err != nil {
		t.Fatalf("UpdateSegmentDuration: %v", err)
	}
	total, _ = db.TotalSegmentDuration("n1")
	if total != 4000 {
		t.Errorf("TotalSegmentDuration = %d, want 4000", total)
	}

	id1, _ := db.AddAudioSegment("n1", 1, "/rec/n1_mic_seg1.wav", nil, 4000)
	db.UpdateSegmentDuration(id1, 2500)

	segments, err := db.GetAudioSegments("n1")
	if err != nil {
		t.Fatalf("GetAudioSegments: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(segments))
	}

	// Плотный префикс индексов и согласованность оффсетов
	for i, seg := range segments {
		if seg.SegmentIndex != i {
			t.Errorf("segment %d index = %d", i, seg.SegmentIndex)
		}
	}
	if segments[1].StartOffsetMs != segments[0].StartOffsetMs+*segments[0].DurationMs {
		t.Errorf("offset[1] = %d, want %d",
			segments[1].StartOffsetMs, segments[0].StartOffsetMs+*segments[0].DurationMs)
	}
	if segments[1].SystemPath != nil {
		t.Error("segment 1 must have no system path")
	}

	total, _ = db.TotalSegmentDuration("n1")
	if total != 6500 {
		t.Errorf("TotalSegmentDuration = %d, want 6500", total)
	}

	paths, err := db.DeleteAudioSegments("n1")
	if err != nil {
		t.Fatalf("DeleteAudioSegments: %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("returned paths = %v, want 3 entries", paths)
	}
	segments, _ = db.GetAudioSegments("n1")
	if len(segments) != 0 {
		t.Errorf("segments after delete = %d", len(segments))
	}
}

func TestTranscriptSegments(t *testing.T) {
	db := openTestDB(t)
	db.CreateNote("n1", "t", nil, nil)

	rows := []TranscriptRow{
		{NoteID: "n1", StartTime: 3.0, EndTime: 5.0, Text: "second", Speaker: strPtr("others")},
		{NoteID: "n1", StartTime: 0.0, EndTime: 2.5, Text: "first", Speaker: strPtr("self")},
	}
	n, err := db.AddTranscriptSegmentsBatch(rows)
	if err != nil {
		t.Fatalf("AddTranscriptSegmentsBatch: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	// Повторный батч переиспользует prepared statement
	if _, err := db.AddTranscriptSegmentsBatch([]TranscriptRow{
		{NoteID: "n1", StartTime: 6.0, EndTime: 7.0, Text: "third", Speaker: strPtr("self")},
	}); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	segments, err := db.GetTranscriptSegments("n1")
	if err != nil {
		t.Fatalf("GetTranscriptSegments: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(segments))
	}

	// Каноническое представление: по возрастанию start_time
	if segments[0].Text != "first" || segments[1].Text != "second" || segments[2].Text != "third" {
		t.Errorf("order: %q %q %q", segments[0].Text, segments[1].Text, segments[2].Text)
	}
	for _, seg := range segments {
		if seg.StartTime > seg.EndTime {
			t.Errorf("segment %q: start %v > end %v", seg.Text, seg.StartTime, seg.EndTime)
		}
	}
	if *segments[0].Speaker != "self" || *segments[1].Speaker != "others" {
		t.Errorf("speakers: %v %v", *segments[0].Speaker, *segments[1].Speaker)
	}

	if err := db.DeleteTranscriptSegments("n1"); err != nil {
		t.Fatalf("DeleteTranscriptSegments: %v", err)
	}
	segments, _ = db.GetTranscriptSegments("n1")
	if len(segments) != 0 {
		t.Errorf("segments after delete = %d", len(segments))
	}
}

func TestAddTranscriptSegmentsBatchEmpty(t *testing.T) {
	db := openTestDB(t)
	n, err := db.AddTranscriptSegmentsBatch(nil)
	if err != nil || n != 0 {
		t.Errorf("empty batch = (%d, %v), want (0, nil)", n, err)
	}
}

// TestDeleteNoteCascade каскад убирает сегменты и транскрипты,
// наружу отдаются пути WAV файлов
func TestDeleteNoteCascade(t *testing.T) {
	db := openTestDB(t)
	db.CreateNote("n1", "t", nil, nil)

	id, _ := db.AddAudioSegment("n1", 0, "/rec/m.wav", strPtr("/rec/s.wav"), 0)
	db.UpdateSegmentDuration(id, 1000)
	db.SetNoteAudioPath("n1", "/rec/n1.wav")
	db.AddTranscriptSegmentsBatch([]TranscriptRow{
		{NoteID: "n1", StartTime: 0, EndTime: 1, Text: "hi", Speaker: strPtr("self")},
	})

	paths, err := db.DeleteNote("n1")
	if err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	want := map[string]bool{"/rec/m.wav": true, "/rec/s.wav": true, "/rec/n1.wav": true}
	if len(paths) != 3 {
		t.Fatalf("paths = %v", paths)
	}
	for _, p := range paths {
		if !want[p] {
			t.Errorf("unexpected path %q", p)
		}
	}

	note, _ := db.GetNote("n1")
	if note != nil {
		t.Error("note still present")
	}
	segments, _ := db.GetAudioSegments("n1")
	if len(segments) != 0 {
		t.Error("audio segments survived cascade")
	}
	transcript, _ := db.GetTranscriptSegments("n1")
	if len(transcript) != 0 {
		t.Error("transcript segments survived cascade")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db.CreateNote("n1", "t", nil, nil)
	db.Close()

	// Повторное открытие не должно перепрогонять миграции
	db, err = Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db.Close()

	note, err := db.GetNote("n1")
	if err != nil || note == nil {
		t.Fatalf("note lost after reopen: %v %v", note, err)
	}
}
