package session

import (
	"fmt"
	"path/filepath"
)

// Раскладка файлов записи:
//   <recordingsDir>/<noteId>_mic_seg<N>.wav    — микрофон, по сегментам
//   <recordingsDir>/<noteId>_system_seg<N>.wav — системный звук, по сегментам
//   <recordingsDir>/<noteId>.wav               — смикшированный playback файл

// MicSegmentPath путь к микрофонному WAV сегмента
func MicSegmentPath(recordingsDir, noteID string, segmentIndex uint32) string {
	return filepath.Join(recordingsDir, fmt.Sprintf("%s_mic_seg%d.wav", noteID, segmentIndex))
}

// SystemSegmentPath путь к системному WAV сегмента
func SystemSegmentPath(recordingsDir, noteID string, segmentIndex uint32) string {
	return filepath.Join(recordingsDir, fmt.Sprintf("%s_system_seg%d.wav", noteID, segmentIndex))
}

// PlaybackPath путь к финальному смикшированному файлу заметки
func PlaybackPath(recordingsDir, noteID string) string {
	return filepath.Join(recordingsDir, noteID+".wav")
}
