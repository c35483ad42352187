package store

import "fmt"

// AudioSegment непрерывный интервал записи между границами
// start/pause/resume/stop, по WAV файлу на источник
type AudioSegment struct {
	ID            int64   `json:"id"`
	NoteID        string  `json:"noteId"`
	SegmentIndex  int     `json:"segmentIndex"`
	MicPath       string  `json:"micPath"`
	SystemPath    *string `json:"systemPath,omitempty"`
	StartOffsetMs int64   `json:"startOffsetMs"`
	DurationMs    *int64  `json:"durationMs,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

// AddAudioSegment создаёт запись сегмента. duration_ms остаётся NULL до
// закрытия сегмента и поэтому не участвует в total-duration.
func (db *DB) AddAudioSegment(noteID string, segmentIndex int, micPath string, systemPath *string, startOffsetMs int64) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(
		`INSERT INTO audio_segments (note_id, segment_index, mic_path, system_path, start_offset_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		noteID, segmentIndex, micPath, systemPath, startOffsetMs, nowRFC3339(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add audio segment: %w", err)
	}
	return res.LastInsertId()
}

// UpdateSegmentDuration проставляет длительность закрытого сегмента.
// Единственная мутация строки сегмента после вставки.
func (db *DB) UpdateSegmentDuration(segmentID, durationMs int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		`UPDATE audio_segments SET duration_ms = ? WHERE id = ?`, durationMs, segmentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update segment duration: %w", err)
	}
	return nil
}

// GetAudioSegments возвращает сегменты заметки по порядку индексов
func (db *DB) GetAudioSegments(noteID string) ([]AudioSegment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT id, note_id, segment_index, mic_path, system_path, start_offset_ms, duration_ms, created_at
		 FROM audio_segments
		 WHERE note_id = ?
		 ORDER BY segment_index ASC`,
		noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get audio segments: %w", err)
	}
	defer rows.Close()

	var segments []AudioSegment
	for rows.Next() {
		var s AudioSegment
		if err := rows.Scan(&s.ID, &s.NoteID, &s.SegmentIndex, &s.MicPath,
			&s.SystemPath, &s.StartOffsetMs, &s.DurationMs, &s.CreatedAt); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// NextSegmentIndex возвращает MAX(segment_index)+1, либо 0 для заметки
// без сегментов
func (db *DB) NextSegmentIndex(noteID string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var maxIndex *int
	err := db.conn.QueryRow(
		`SELECT MAX(segment_index) FROM audio_segments WHERE note_id = ?`, noteID,
	).Scan(&maxIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to get next segment index: %w", err)
	}
	if maxIndex == nil {
		return 0, nil
	}
	return *maxIndex + 1, nil
}

// TotalSegmentDuration суммарная длительность закрытых сегментов заметки.
// Незакрытый сегмент (duration_ms IS NULL) даёт вклад 0.
func (db *DB) TotalSegmentDuration(noteID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var total int64
	err := db.conn.QueryRow(
		`SELECT COALESCE(SUM(duration_ms), 0) FROM audio_segments WHERE note_id = ?`, noteID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get total segment duration: %w", err)
	}
	return total, nil
}

// DeleteAudioSegments удаляет все сегменты заметки, возвращая пути их
// WAV файлов
func (db *DB) DeleteAudioSegments(noteID string) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT mic_path, system_path FROM audio_segments WHERE note_id = ?`, noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segment paths: %w", err)
	}
	var paths []string
	for rows.Next() {
		var micPath string
		var systemPath *string
		if err := rows.Scan(&micPath, &systemPath); err != nil {
			rows.Close()
			return nil, err
		}
		paths = append(paths, micPath)
		if systemPath != nil && *systemPath != "" {
			paths = append(paths, *systemPath)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := db.conn.Exec(`DELETE FROM audio_segments WHERE note_id = ?`, noteID); err != nil {
		return nil, fmt.Errorf("failed to delete audio segments: %w", err)
	}

	return paths, nil
}
