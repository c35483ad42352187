package models

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrAlreadyDownloading в процессе допускается одна загрузка модели
var ErrAlreadyDownloading = errors.New("already downloading a model")

// Manager управляет скачиванием и размещением весов моделей.
// downloaded всегда выводится из файловой системы, без отдельного
// состояния.
type Manager struct {
	modelsDir string

	isDownloading    atomic.Bool
	downloadProgress atomic.Uint32 // 0-100
}

// NewManager создаёт менеджер моделей
func NewManager(modelsDir string) (*Manager, error) {
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}
	return &Manager{modelsDir: modelsDir}, nil
}

// ModelsDir возвращает директорию моделей
func (m *Manager) ModelsDir() string {
	return m.modelsDir
}

// ModelPath путь к файлу весов
func (m *Manager) ModelPath(size Size) string {
	return filepath.Join(m.modelsDir, size.Filename())
}

// IsDownloaded проверяет наличие файла весов
func (m *Manager) IsDownloaded(size Size) bool {
	_, err := os.Stat(m.ModelPath(size))
	return err == nil
}

// ListModels возвращает состояние всех известных моделей
func (m *Manager) ListModels() []Info {
	sizes := AllSizes()
	infos := make([]Info, 0, len(sizes))
	for _, size := range sizes {
		downloaded := m.IsDownloaded(size)
		info := Info{
			Size:       size,
			Name:       string(size),
			Downloaded: downloaded,
			SizeMB:     size.SizeMB(),
		}
		if downloaded {
			info.Path = m.ModelPath(size)
		}
		infos = append(infos, info)
	}
	return infos
}

// Download скачивает модель. Блокирует до завершения; повторный вызов
// для уже скачанной модели — no-op с путём к существующему файлу.
// Прогресс доступен через Progress() и дополнительный onProgress.
func (m *Manager) Download(ctx context.Context, size Size, onProgress ProgressFunc) (string, error) {
	path := m.ModelPath(size)
	if m.IsDownloaded(size) {
		return path, nil
	}

	if !m.isDownloading.CompareAndSwap(false, true) {
		return "", ErrAlreadyDownloading
	}
	defer m.isDownloading.Store(false)

	m.downloadProgress.Store(0)

	progress := func(downloaded, total int64) {
		if total > 0 {
			m.downloadProgress.Store(uint32(downloaded * 100 / total))
		}
		if onProgress != nil {
			onProgress(downloaded, total)
		}
	}

	log.Printf("Downloading model %s from %s", size, size.DownloadURL())
	if err := DownloadFile(ctx, size.DownloadURL(), path, progress); err != nil {
		// Неудачная загрузка не должна оставлять ни .tmp, ни битый файл
		os.Remove(path + ".tmp")
		return "", fmt.Errorf("failed to download model %s: %w", size, err)
	}

	m.downloadProgress.Store(100)
	log.Printf("Model %s downloaded to %s", size, path)
	return path, nil
}

// IsDownloading возвращает true пока идёт загрузка
func (m *Manager) IsDownloading() bool {
	return m.isDownloading.Load()
}

// Progress текущий прогресс загрузки 0-100
func (m *Manager) Progress() int {
	return int(m.downloadProgress.Load())
}

// Delete удаляет скачанную модель
func (m *Manager) Delete(size Size) error {
	path := m.ModelPath(size)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	log.Printf("Model deleted: %s", size)
	return nil
}
