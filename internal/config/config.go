package config

import (
	"flag"
	"path/filepath"
	"runtime"
)

type Config struct {
	DataDir       string
	RecordingsDir string
	ModelsDir     string
	DBPath        string
	Port          string
	GRPCAddr      string

	// Язык транскрипции ("auto" — автоопределение)
	Language string

	TraceLog string
}

func Load() *Config {
	dataDir := flag.String("data", "data", "Directory for application data")
	modelsDir := flag.String("models", "", "Directory for downloaded models (default: dataDir/models)")
	port := flag.String("port", "8080", "Server port")
	grpcAddr := flag.String("grpc-addr", defaultGRPCAddress(), "gRPC listen address (unix:/path/to.sock or npipe:////./pipe/netnote-grpc)")
	language := flag.String("lang", "auto", "Transcription language hint (auto for detection)")
	traceLog := flag.String("trace-log", "", "Path to trace log file")

	flag.Parse()

	finalModelsDir := *modelsDir
	if finalModelsDir == "" {
		finalModelsDir = filepath.Join(*dataDir, "models")
	}

	return &Config{
		DataDir:       *dataDir,
		RecordingsDir: filepath.Join(*dataDir, "recordings"),
		ModelsDir:     finalModelsDir,
		DBPath:        filepath.Join(*dataDir, "netnote.db"),
		Port:          *port,
		GRPCAddr:      *grpcAddr,
		Language:      *language,
		TraceLog:      *traceLog,
	}
}

func defaultGRPCAddress() string {
	if runtime.GOOS == "windows" {
		return "npipe:\\\\.\\pipe\\netnote-grpc"
	}
	return "unix:/tmp/netnote-grpc.sock"
}
