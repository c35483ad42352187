package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Note заметка встречи
type Note struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	Participants *string `json:"participants,omitempty"`
	StartedAt    string  `json:"startedAt"`
	EndedAt      *string `json:"endedAt,omitempty"`
	AudioPath    *string `json:"audioPath,omitempty"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreateNote создаёт заметку
func (db *DB) CreateNote(id, title string, description, participants *string) (*Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := nowRFC3339()
	_, err := db.conn.Exec(
		`INSERT INTO notes (id, title, description, participants, started_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, title, description, participants, now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	return &Note{
		ID:           id,
		Title:        title,
		Description:  description,
		Participants: participants,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func scanNote(row *sql.Row) (*Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.Title, &n.Description, &n.Participants,
		&n.StartedAt, &n.EndedAt, &n.AudioPath, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

const noteColumns = `id, title, description, participants, started_at, ended_at, audio_path, created_at, updated_at`

// GetNote возвращает заметку по id, nil если не найдена
func (db *DB) GetNote(id string) (*Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return n, nil
}

// ListNotes возвращает заметки, новые сверху
func (db *DB) ListNotes() ([]Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(`SELECT ` + noteColumns + ` FROM notes ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Description, &n.Participants,
			&n.StartedAt, &n.EndedAt, &n.AudioPath, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// UpdateNote обновляет поля заметки
func (db *DB) UpdateNote(id string, title *string, description, participants *string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		`UPDATE notes SET
			title = COALESCE(?, title),
			description = COALESCE(?, description),
			participants = COALESCE(?, participants),
			updated_at = ?
		 WHERE id = ?`,
		title, description, participants, nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	return nil
}

// EndNote проставляет ended_at
func (db *DB) EndNote(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := nowRFC3339()
	_, err := db.conn.Exec(
		`UPDATE notes SET ended_at = ?, updated_at = ? WHERE id = ?`, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end note: %w", err)
	}
	return nil
}

// ReopenNote сбрасывает ended_at (для продолжения записи)
func (db *DB) ReopenNote(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		`UPDATE notes SET ended_at = NULL, updated_at = ? WHERE id = ?`, nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to reopen note: %w", err)
	}
	return nil
}

// SetNoteAudioPath сохраняет путь к playback файлу
func (db *DB) SetNoteAudioPath(id, audioPath string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		`UPDATE notes SET audio_path = ?, updated_at = ? WHERE id = ?`,
		audioPath, nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set audio path: %w", err)
	}
	return nil
}

// DeleteNote удаляет заметку. Каскад убирает сегменты и транскрипты;
// возвращаются пути всех WAV файлов заметки, чтобы вызывающий удалил их
// с диска.
func (db *DB) DeleteNote(id string) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var paths []string

	rows, err := db.conn.Query(
		`SELECT mic_path, system_path FROM audio_segments WHERE note_id = ?`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segment paths: %w", err)
	}
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

	var audioPath *string
	if err := db.conn.QueryRow(`SELECT audio_path FROM notes WHERE id = ?`, id).Scan(&audioPath); err == nil {
		if audioPath != nil && *audioPath != "" {
			paths = append(paths, *audioPath)
		}
	}

	if _, err := db.conn.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete note: %w", err)
	}

	return paths, nil
}
