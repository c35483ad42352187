package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/inferis995/netnote/audio"
	"github.com/inferis995/netnote/internal/api"
	"github.com/inferis995/netnote/internal/config"
	"github.com/inferis995/netnote/internal/service"
	"github.com/inferis995/netnote/models"
	"github.com/inferis995/netnote/store"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	logFile := setupLogging(cfg.TraceLog)
	if logFile != nil {
		defer logFile.Close()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC: %v", r)
			panic(r)
		}
	}()

	// Ensure directories exist
	if err := os.MkdirAll(cfg.RecordingsDir, 0755); err != nil {
		log.Fatal("Failed to create recordings directory:", err)
	}
	if err := os.MkdirAll(cfg.ModelsDir, 0755); err != nil {
		log.Fatal("Failed to create models directory:", err)
	}

	// 2. Initialize Storage and Managers
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	modelMgr, err := models.NewManager(cfg.ModelsDir)
	if err != nil {
		log.Fatal("Failed to create model manager:", err)
	}

	// 3. Initialize Audio Capture
	mic, err := audio.NewMicCapture()
	if err != nil {
		log.Fatal("Failed to initialize microphone capture:", err)
	}
	defer mic.Close()

	systemAudio := audio.NewSystemCapture()
	if !audio.IsSystemAudioSupported() {
		log.Println("System audio capture is not supported on this platform, recording mic only")
	}

	// 4. Initialize Services
	recordingService := service.NewRecordingService(db, mic, systemAudio, cfg.RecordingsDir)
	transcriptionService := service.NewTranscriptionService(db, modelMgr, cfg.Language)

	// 5. Initialize API Server and Live Transcription
	server := api.NewServer(cfg, db, modelMgr, recordingService, transcriptionService, systemAudio)
	liveService := service.NewLiveTranscriptionService(db, recordingService.Recorder, transcriptionService, server.EmitEvent)
	server.SetLiveService(liveService)

	// 6. Start Server
	log.Println("Starting NetNote Backend...")
	server.Start()
}

func setupLogging(path string) *os.File {
	if path == "" {
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open trace log %s: %v\n", path, err)
		return nil
	}

	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Printf("trace log attached: %s", path)

	return file
}
