package store

import "fmt"

// TranscriptSegment распознанный отрезок речи. Времена в секундах от
// начала заметки, не от начала отдельного аудио-сегмента.
type TranscriptSegment struct {
	ID        int64   `json:"id"`
	NoteID    string  `json:"noteId"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
	Speaker   *string `json:"speaker,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

// TranscriptRow строка для батч-вставки
type TranscriptRow struct {
	NoteID    string
	StartTime float64
	EndTime   float64
	Text      string
	Speaker   *string
}

const insertTranscriptSQL = `INSERT INTO transcript_segments (note_id, start_time, end_time, text, speaker, created_at)
 VALUES (?, ?, ?, ?, ?, ?)`

// AddTranscriptSegment вставляет один сегмент транскрипта
func (db *DB) AddTranscriptSegment(noteID string, startTime, endTime float64, text string, speaker *string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(insertTranscriptSQL, noteID, startTime, endTime, text, speaker, nowRFC3339())
	if err != nil {
		return 0, fmt.Errorf("failed to add transcript segment: %w", err)
	}
	return res.LastInsertId()
}

// AddTranscriptSegmentsBatch вставляет пачку сегментов одной транзакцией
// через кэшированный prepared statement. Планировщик живой транскрипции
// коммитит до двух источников за тик, и дёргать Prepare на каждый тик
// слишком дорого.
func (db *DB) AddTranscriptSegmentsBatch(rows []TranscriptRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.insertTranscriptStmt == nil {
		stmt, err := db.conn.Prepare(insertTranscriptSQL)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare transcript insert: %w", err)
		}
		db.insertTranscriptStmt = stmt
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt := tx.Stmt(db.insertTranscriptStmt)
	now := nowRFC3339()
	count := 0
	for _, r := range rows {
		if _, err := stmt.Exec(r.NoteID, r.StartTime, r.EndTime, r.Text, r.Speaker, now); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert transcript segment: %w", err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transcript batch: %w", err)
	}
	return count, nil
}

// GetTranscriptSegments каноническое представление транскрипта:
// сегменты заметки по возрастанию start_time
func (db *DB) GetTranscriptSegments(noteID string) ([]TranscriptSegment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT id, note_id, start_time, end_time, text, speaker, created_at
		 FROM transcript_segments
		 WHERE note_id = ?
		 ORDER BY start_time ASC`,
		noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript segments: %w", err)
	}
	defer rows.Close()

	var segments []TranscriptSegment
	for rows.Next() {
		var s TranscriptSegment
		if err := rows.Scan(&s.ID, &s.NoteID, &s.StartTime, &s.EndTime, &s.Text, &s.Speaker, &s.CreatedAt); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// DeleteTranscriptSegments удаляет транскрипт заметки (перед явной
// ре-транскрипцией готового файла)
func (db *DB) DeleteTranscriptSegments(noteID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(`DELETE FROM transcript_segments WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to delete transcript segments: %w", err)
	}
	return nil
}
