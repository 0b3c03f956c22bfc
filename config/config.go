// Package config merges defaults, config.yaml, JURU_* environment variables
// and command-line flags into one typed Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"juru/audio"
	"juru/live"
	"juru/pcm"
	"juru/session"
	"juru/transcript"
	"juru/vad"
)

const EnvPrefix = "JURU"

var ErrNoAPIKey = errors.New("no API key: set GEMINI_API_KEY or api_key in config.yaml")

type Config struct {
	APIKey      string
	Direction   session.Direction
	Device      string
	Setup       bool
	Model       string
	Endpoint    string
	LogPath     string
	MetricsAddr string
	RecordDir   string
	Merge       transcript.MatchMode
	BlockSize   int
	InputRate   int
	OutputRate  int
	SendQueue   int
	LongPress   time.Duration
	VAD         bool
	TUI         bool
	// Test is the WAV file fed to the fake microphone in headless mode.
	Test string
}

// flag name -> viper key
var flagKeys = map[string]string{
	"direction":    "direction",
	"device":       "device",
	"setup":        "setup",
	"model":        "model",
	"endpoint":     "endpoint",
	"logpath":      "log_path",
	"metrics-addr": "metrics_addr",
	"record-dir":   "record_dir",
	"merge":        "merge",
	"block-size":   "block_size",
	"vad":          "vad",
	"tui":          "tui",
	"test":         "test",
}

// New returns a viper instance with defaults, search paths and environment
// bindings set up. dirs overrides the config.yaml search path.
func New(dirs ...string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(dirs) == 0 {
		dirs = append(dirs, ".")
		if d, err := os.UserConfigDir(); err == nil {
			dirs = append(dirs, filepath.Join(d, "juru"))
		}
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}

	v.SetDefault("direction", string(session.IndonesianToJapanese))
	v.SetDefault("model", live.DefaultModel)
	v.SetDefault("endpoint", live.DefaultEndpoint)
	v.SetDefault("merge", transcript.MatchBySpeaker.String())
	v.SetDefault("block_size", audio.DefaultBlockSize)
	v.SetDefault("input_rate", pcm.InputSampleRate)
	v.SetDefault("output_rate", pcm.OutputSampleRate)
	v.SetDefault("send_queue", 64)
	v.SetDefault("long_press", 400*time.Millisecond)
	v.SetDefault("vad", true)
	v.SetDefault("tui", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.BindEnv("api_key", EnvPrefix+"_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	return v
}

// AddFlags registers the session flags on cmd and binds them to v.
func AddFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("direction", string(session.IndonesianToJapanese), "translation direction: id_to_jp or jp_to_id")
	f.String("device", "", "capture device name or ID")
	f.Bool("setup", false, "pick the capture device interactively")
	f.String("model", live.DefaultModel, "live model")
	f.String("endpoint", live.DefaultEndpoint, "live API websocket endpoint")
	f.String("logpath", "", "log directory (default: OS log dir, or $JURU_LOG_PATH)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("record-dir", "", "record each session as FLAC into this directory")
	f.String("merge", transcript.MatchBySpeaker.String(), "transcript merge: speaker or last")
	f.Int("block-size", audio.DefaultBlockSize, "capture block size in frames")
	f.Bool("vad", true, "show voice activity")
	f.Bool("tui", true, "interactive terminal UI")
	f.String("test", "", "headless test mode: feed this WAV file as the microphone")

	for name, key := range flagKeys {
		v.BindPFlag(key, f.Lookup(name))
	}
}

// Load reads config.yaml if there is one and decodes everything into a
// Config. A missing config file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	dir, err := session.ParseDirection(v.GetString("direction"))
	if err != nil {
		return Config{}, err
	}
	merge, err := transcript.ParseMatchMode(v.GetString("merge"))
	if err != nil {
		return Config{}, err
	}
	return Config{
		APIKey:      strings.TrimSpace(v.GetString("api_key")),
		Direction:   dir,
		Device:      v.GetString("device"),
		Setup:       v.GetBool("setup"),
		Model:       v.GetString("model"),
		Endpoint:    v.GetString("endpoint"),
		LogPath:     v.GetString("log_path"),
		MetricsAddr: v.GetString("metrics_addr"),
		RecordDir:   v.GetString("record_dir"),
		Merge:       merge,
		BlockSize:   v.GetInt("block_size"),
		InputRate:   v.GetInt("input_rate"),
		OutputRate:  v.GetInt("output_rate"),
		SendQueue:   v.GetInt("send_queue"),
		LongPress:   v.GetDuration("long_press"),
		VAD:         v.GetBool("vad"),
		TUI:         v.GetBool("tui"),
		Test:        v.GetString("test"),
	}, nil
}

// Validate checks ranges and the API key. Test mode runs against a fake
// remote and needs no key.
func (c Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	if c.InputRate <= 0 || c.OutputRate <= 0 {
		return fmt.Errorf("sample rates must be positive, got input=%d output=%d", c.InputRate, c.OutputRate)
	}
	if c.VAD && !vad.SupportedRate(c.InputRate) {
		return fmt.Errorf("input rate %d not supported by voice detection, want one of %v or --vad=false", c.InputRate, vad.Rates)
	}
	if c.SendQueue <= 0 {
		return fmt.Errorf("send queue must be positive, got %d", c.SendQueue)
	}
	if c.Model == "" {
		return errors.New("model must not be empty")
	}
	if !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		return fmt.Errorf("endpoint %q is not a websocket URL", c.Endpoint)
	}
	if c.APIKey == "" && c.Test == "" {
		return ErrNoAPIKey
	}
	return nil
}
