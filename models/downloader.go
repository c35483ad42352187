package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// ProgressFunc вызывается на каждый принятый чанк.
// total == 0 если сервер не прислал Content-Length — процент в этом
// случае не определён, но callback всё равно дёргается.
type ProgressFunc func(downloaded, total int64)

// DownloadFile атомарно скачивает файл: пишет в сосед .tmp и
// переименовывает по завершении. Оборванная загрузка оставляет только
// .tmp, целевой файл не может оказаться битым.
func DownloadFile(ctx context.Context, url, destPath string, onProgress ProgressFunc) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Без таймаута: веса моделей занимают гигабайты
	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Remove(tmpPath)
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	totalSize := resp.ContentLength
	if totalSize < 0 {
		totalSize = 0
	}

	reader := &progressReader{
		reader:     resp.Body,
		totalSize:  totalSize,
		onProgress: onProgress,
	}

	if _, err := io.Copy(out, reader); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	// Закрываем файл перед переименованием
	out.Close()

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// progressReader обёртка io.Reader с отслеживанием прогресса
type progressReader struct {
	reader     io.Reader
	totalSize  int64
	downloaded int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if pr.onProgress != nil {
			pr.onProgress(pr.downloaded, pr.totalSize)
		}
	}
	return n, err
}
