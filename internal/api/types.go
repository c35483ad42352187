package api

import (
	"github.com/inferis995/netnote/ai"
	"github.com/inferis995/netnote/internal/service"
	"github.com/inferis995/netnote/models"
	"github.com/inferis995/netnote/store"
)

// Message единица обмена по WebSocket и gRPC control stream.
// Одна структура на запросы, ответы и события — как в остальном
// протоколе приложения.
type Message struct {
	Type string `json:"type"`

	// Параметры запросов
	NoteID       string  `json:"noteId,omitempty"`
	Title        string  `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	Participants *string `json:"participants,omitempty"`
	Language     string  `json:"language,omitempty"`
	ModelSize    string  `json:"modelSize,omitempty"`
	AudioPath    string  `json:"audioPath,omitempty"`
	MicPath      string  `json:"micPath,omitempty"`
	SystemPath   *string `json:"systemPath,omitempty"`
	Speaker      *string `json:"speaker,omitempty"`

	// Ответы
	Error      string               `json:"error,omitempty"`
	OK         bool                 `json:"ok,omitempty"`
	Note       *store.Note          `json:"note,omitempty"`
	Notes      []store.Note         `json:"notes,omitempty"`
	Segments   []store.AudioSegment `json:"segments,omitempty"`
	Transcript []store.TranscriptSegment `json:"transcript,omitempty"`
	Models     []models.Info        `json:"models,omitempty"`
	Path       string               `json:"path,omitempty"`

	// Статусы
	Recording     bool   `json:"recording,omitempty"`
	Phase         string `json:"phase,omitempty"`
	Transcribing  bool   `json:"transcribing,omitempty"`
	Live          bool   `json:"live,omitempty"`
	Downloading   bool   `json:"downloading,omitempty"`
	Progress      int    `json:"progress,omitempty"`
	Supported     bool   `json:"supported,omitempty"`
	Permission    bool   `json:"permission,omitempty"`
	TotalDuration int64  `json:"totalDurationMs,omitempty"`

	// Уровни для VU-метров
	MicLevel    float64 `json:"micLevel,omitempty"`
	SystemLevel float64 `json:"systemLevel,omitempty"`

	// Результаты транскрипции
	Result     *ai.Result                         `json:"result,omitempty"`
	DualResult *service.DualTranscriptionResult   `json:"dualResult,omitempty"`
	Recorder   *service.DualRecordingStatus       `json:"recorder,omitempty"`
	Update     *service.TranscriptionUpdateEvent  `json:"update,omitempty"`
}
