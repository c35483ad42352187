// Package api поднимает WebSocket и gRPC каналы управления:
// команды UI и поток событий transcription-update / download-progress /
// audio-level.
package api

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/inferis995/netnote/audio"
	"github.com/inferis995/netnote/internal/config"
	"github.com/inferis995/netnote/internal/service"
	"github.com/inferis995/netnote/models"
	"github.com/inferis995/netnote/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type transportClient interface {
	Send(Message) error
	Close() error
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}

// Server раздаёт команды сервисам и транслирует события всем клиентам
type Server struct {
	Config *config.Config

	DB          *store.DB
	ModelMgr    *models.Manager
	Recording   *service.RecordingService
	Trans       *service.TranscriptionService
	Live        *service.LiveTranscriptionService
	SystemAudio audio.SystemCapture

	clients map[transportClient]bool
	mu      sync.Mutex
}

// NewServer создаёт сервер API
func NewServer(
	cfg *config.Config,
	db *store.DB,
	modelMgr *models.Manager,
	recording *service.RecordingService,
	trans *service.TranscriptionService,
	systemAudio audio.SystemCapture,
) *Server {
	return &Server{
		Config:      cfg,
		DB:          db,
		ModelMgr:    modelMgr,
		Recording:   recording,
		Trans:       trans,
		SystemAudio: systemAudio,
		clients:     make(map[transportClient]bool),
	}
}

// SetLiveService подключает планировщик живой транскрипции
// (создаётся после сервера: ему нужен EmitEvent)
func (s *Server) SetLiveService(live *service.LiveTranscriptionService) {
	s.Live = live
}

// Start запускает HTTP и gRPC серверы (блокирует)
func (s *Server) Start() {
	http.HandleFunc("/ws", s.handleWebSocket)

	go s.startGRPCServer()
	go s.audioLevelLoop()

	addr := ":" + s.Config.Port
	log.Printf("API server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal("HTTP server failed:", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn}
	s.addClient(client)
	defer s.removeClient(client)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
		s.dispatch(client, msg)
	}
}

func (s *Server) addClient(c transportClient) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
}

func (s *Server) removeClient(c transportClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.Close()
}

// Broadcast шлёт сообщение всем подключённым клиентам
func (s *Server) Broadcast(msg Message) {
	s.mu.Lock()
	clients := make([]transportClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(msg); err != nil {
			log.Printf("Failed to send to client: %v", err)
		}
	}
}

// EmitEvent адаптер под service.EventEmitter
func (s *Server) EmitEvent(event string, payload interface{}) {
	msg := Message{Type: event}
	if update, ok := payload.(service.TranscriptionUpdateEvent); ok {
		msg.Update = &update
	}
	s.Broadcast(msg)
}

// audioLevelLoop транслирует уровни для VU-метров пока идёт запись
func (s *Server) audioLevelLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if !s.Recording.IsDualRecording() {
			continue
		}
		mic, system := s.Recording.AudioLevels()
		s.Broadcast(Message{Type: "audio-level", MicLevel: mic, SystemLevel: system})
	}
}

// dispatch выполняет команду и шлёт ответ клиенту
func (s *Server) dispatch(client transportClient, msg Message) {
	reply := s.handleCommand(msg)
	reply.Type = msg.Type
	if err := client.Send(reply); err != nil {
		log.Printf("Failed to send reply: %v", err)
	}
}

func errorReply(err error) Message {
	return Message{Error: err.Error()}
}

func (s *Server) handleCommand(msg Message) Message {
	switch msg.Type {

	// ===== Заметки =====
	case "create_note":
		id := uuid.New().String()
		note, err := s.DB.CreateNote(id, msg.Title, msg.Description, msg.Participants)
		if err != nil {
			return errorReply(err)
		}
		return Message{Note: note, OK: true}

	case "get_note":
		note, err := s.DB.GetNote(msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		return Message{Note: note, OK: note != nil}

	case "list_notes":
		notes, err := s.DB.ListNotes()
		if err != nil {
			return errorReply(err)
		}
		return Message{Notes: notes, OK: true}

	case "update_note":
		var title *string
		if msg.Title != "" {
			title = &msg.Title
		}
		if err := s.DB.UpdateNote(msg.NoteID, title, msg.Description, msg.Participants); err != nil {
			return errorReply(err)
		}
		return Message{OK: true}

	case "end_note":
		if err := s.DB.EndNote(msg.NoteID); err != nil {
			return errorReply(err)
		}
		return Message{OK: true}

	case "delete_note":
		if err := s.Recording.DeleteNote(msg.NoteID); err != nil {
			return errorReply(err)
		}
		return Message{OK: true}

	// ===== Запись =====
	case "start_dual_recording_with_segments":
		status, err := s.Recording.StartDualRecording(msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		return Message{Recorder: status, OK: true}

	case "pause_dual_recording":
		if err := s.Recording.PauseDualRecording(); err != nil {
			return errorReply(err)
		}
		return Message{OK: true}

	case "resume_dual_recording":
		status, err := s.Recording.ResumeDualRecording(msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		return Message{Recorder: status, OK: true}

	case "stop_dual_recording":
		note, err := s.Recording.StopDualRecording(msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		return Message{Note: note, OK: true}

	case "continue_note_recording":
		status, err := s.Recording.ContinueNoteRecording(msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		return Message{Recorder: status, OK: true}

	case "is_dual_recording":
		return Message{Recording: s.Recording.IsDualRecording(), OK: true}

	case "get_recording_phase":
		return Message{Phase: s.Recording.RecordingPhase(), OK: true}

	case "get_audio_level":
		mic, system := s.Recording.AudioLevels()
		return Message{MicLevel: mic, SystemLevel: system, OK: true}

	case "is_system_audio_supported":
		return Message{Supported: audio.IsSystemAudioSupported(), OK: true}

	case "has_system_audio_permission":
		ok, err := s.SystemAudio.HasPermission()
		if err != nil {
			return errorReply(err)
		}
		return Message{Permission: ok, OK: true}

	case "request_system_audio_permission":
		ok, err := s.SystemAudio.RequestPermission()
		if err != nil {
			return errorReply(err)
		}
		return Message{Permission: ok, OK: true}

	case "get_note_audio_segments":
		segments, err := s.DB.GetAudioSegments(msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		return Message{Segments: segments, OK: true}

	case "get_note_total_duration":
		total, err := s.DB.TotalSegmentDuration(msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		return Message{TotalDuration: total, OK: true}

	case "delete_note_audio_segments":
		paths, err := s.DB.DeleteAudioSegments(msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		removeFiles(paths)
		return Message{OK: true}

	// ===== Модели =====
	case "list_models":
		return Message{Models: s.ModelMgr.ListModels(), OK: true}

	case "download_model":
		size, err := models.ParseSize(msg.ModelSize)
		if err != nil {
			return errorReply(err)
		}
		go s.downloadModel(size)
		return Message{Downloading: true, OK: true}

	case "get_download_progress":
		return Message{Progress: s.ModelMgr.Progress(), Downloading: s.ModelMgr.IsDownloading(), OK: true}

	case "is_downloading":
		return Message{Downloading: s.ModelMgr.IsDownloading(), OK: true}

	case "delete_model":
		size, err := models.ParseSize(msg.ModelSize)
		if err != nil {
			return errorReply(err)
		}
		s.Trans.UnloadIfCurrent(size)
		if err := s.ModelMgr.Delete(size); err != nil {
			return errorReply(err)
		}
		return Message{OK: true}

	case "load_model":
		size, err := models.ParseSize(msg.ModelSize)
		if err != nil {
			return errorReply(err)
		}
		if err := s.Trans.LoadModel(size); err != nil {
			return errorReply(err)
		}
		return Message{OK: true}

	case "get_loaded_model":
		size, loaded := s.Trans.LoadedModel()
		if !loaded {
			return Message{OK: false}
		}
		return Message{ModelSize: string(size), OK: true}

	// ===== Транскрипция =====
	case "transcribe_audio":
		result, err := s.Trans.TranscribeAudio(msg.AudioPath, msg.NoteID, msg.Speaker)
		if err != nil {
			return errorReply(err)
		}
		return Message{Result: result, OK: true}

	case "transcribe_dual_audio":
		result, err := s.Trans.TranscribeDualAudio(msg.MicPath, msg.SystemPath, msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		return Message{DualResult: result, OK: true}

	case "get_transcript":
		transcript, err := s.DB.GetTranscriptSegments(msg.NoteID)
		if err != nil {
			return errorReply(err)
		}
		return Message{Transcript: transcript, OK: true}

	case "start_live_transcription":
		if err := s.Live.Start(msg.NoteID, msg.Language); err != nil {
			return errorReply(err)
		}
		return Message{Live: true, OK: true}

	case "stop_live_transcription":
		result := s.Live.Stop(msg.NoteID)
		return Message{Result: result, OK: true}

	case "is_transcribing":
		return Message{Transcribing: s.Trans.IsTranscribing(), OK: true}

	case "is_live_transcribing":
		return Message{Live: s.Live.IsRunning(), OK: true}
	}

	return Message{Error: "unknown command: " + msg.Type}
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove file %s: %v", p, err)
		}
	}
}

// downloadModel качает модель в фоне, транслируя прогресс
func (s *Server) downloadModel(size models.Size) {
	path, err := s.ModelMgr.Download(context.Background(), size, func(downloaded, total int64) {
		progress := 0
		if total > 0 {
			progress = int(downloaded * 100 / total)
		}
		s.Broadcast(Message{Type: "download-progress", ModelSize: string(size), Progress: progress})
	})
	if err != nil {
		log.Printf("Model download failed: %v", err)
		s.Broadcast(Message{Type: "download-progress", ModelSize: string(size), Error: err.Error()})
		return
	}

	s.Broadcast(Message{
		Type:      "download-progress",
		ModelSize: string(size),
		Progress:  100,
		Path:      path,
		Models:    s.ModelMgr.ListModels(),
	})
}
