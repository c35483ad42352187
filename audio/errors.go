// Package audio реализует захват звука с микрофона и системного выхода,
// потоковую запись WAV и офлайн-микширование дорожек.
package audio

import "errors"

// Ошибки аудио-подсистемы
var (
	ErrNoInputDevice       = errors.New("no input device available")
	ErrAlreadyRecording    = errors.New("already recording")
	ErrNotRecording        = errors.New("not recording")
	ErrNotPaused           = errors.New("not paused")
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrUnsupportedPlatform = errors.New("system audio capture is not supported on this platform")
	ErrAlreadyCapturing    = errors.New("system audio capture already running")
)

// PermissionError ошибка доступа к захвату звука (macOS screen recording и т.п.)
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return "permission denied for audio capture: " + e.Reason
}
