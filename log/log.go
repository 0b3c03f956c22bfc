package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog         zerolog.Logger
	diagFile        *os.File
	translationFile *os.File
	logMu           sync.Mutex
	logReady        bool
	pid             int
	dir             string
)

const EnvLogPath = "JURU_LOG_PATH"

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: JURU_LOG_PATH environment variable
	if envPath := os.Getenv(EnvLogPath); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	translationPath := filepath.Join(dir, "translation_log.txt")
	translationFile, err = os.OpenFile(translationPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	logReady = false
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if translationFile != nil {
		translationFile.Close()
		translationFile = nil
	}
}

func ready() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return logReady
}

func Info(msg string) {
	if ready() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if ready() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if ready() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if ready() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if ready() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if ready() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(id, direction, model, device string) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("direction", direction).
		Str("model", model).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(id, reason string, entries int, dur time.Duration) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("reason", reason).
		Int("entries", entries).
		Float64("duration_s", dur.Seconds()).
		Msg("session_end")
}

type StreamStatsData struct {
	ConnectMs      float64
	SentFrames     int
	SentKB         float64
	DroppedFrames  int
	RecvMessages   int
	ChunksPlayed   int
	Interruptions  int
	Turns          int
	SessionSeconds float64
}

func StreamStats(id string, m StreamStatsData) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("session", id).
		Float64("connect_ms", m.ConnectMs).
		Int("sent_frames", m.SentFrames).
		Float64("sent_kb", m.SentKB).
		Int("dropped_frames", m.DroppedFrames).
		Int("recv_messages", m.RecvMessages).
		Int("chunks_played", m.ChunksPlayed).
		Int("interruptions", m.Interruptions).
		Int("turns", m.Turns).
		Float64("session_s", m.SessionSeconds).
		Msg("stream_stats")
}

// TranscriptLine appends one finalized transcript entry to the translation
// log.
func TranscriptLine(speaker, text string) {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady || translationFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, speaker, text)
	translationFile.WriteString(line)
}
