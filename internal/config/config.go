package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const Version = "2.0"

var ErrModelNotFound = errors.New("model path is invalid")

// Config holds everything Ladybot needs at boot.
type Config struct {
	Model struct {
		Path          string        `yaml:"path"`
		ServerBinary  string        `yaml:"server_binary"`
		API           string        `yaml:"api"` // native | openai
		ContextSize   int           `yaml:"context_size"`
		Threads       int           `yaml:"threads"`
		MaxTokens     int           `yaml:"max_tokens"`
		TopK          int           `yaml:"top_k"`
		TopP          float64       `yaml:"top_p"`
		Temperature   float64       `yaml:"temperature"`
		RepeatPenalty float64       `yaml:"repeat_penalty"`
		StartTimeout  time.Duration `yaml:"start_timeout"`
	} `yaml:"model"`

	Prompt struct {
		UserLabel      string `yaml:"user_label"`
		AssistantLabel string `yaml:"assistant_label"`
	} `yaml:"prompt"`

	Speech struct {
		Backend string  `yaml:"backend"` // espeak | openai | google
		Rate    int     `yaml:"rate"`
		Volume  float64 `yaml:"volume"`
		Voice   string  `yaml:"voice"`
		Duck    bool    `yaml:"duck"`
	} `yaml:"speech"`

	Recognition struct {
		Backend     string        `yaml:"backend"` // google | whisper | vosk | openai
		Device      int           `yaml:"device"`
		Language    string        `yaml:"language"`
		ModelPath   string        `yaml:"model_path"`
		AmbientDur  time.Duration `yaml:"ambient_duration"`
		EnergyFloor float64       `yaml:"energy_floor"`
		ExitPhrase  string        `yaml:"exit_phrase"`
		Earcon      bool          `yaml:"earcon"`
	} `yaml:"recognition"`

	UI struct {
		Addr       string `yaml:"addr"`
		OpenWindow bool   `yaml:"open_window"`
		Hotkey     string `yaml:"hotkey"`
	} `yaml:"ui"`

	Control struct {
		Socket string `yaml:"socket"`
	} `yaml:"control"`

	OpenAI struct {
		APIKey   string `yaml:"-"`
		BaseURL  string `yaml:"base_url"`
		Model    string `yaml:"model"`
		STTModel string `yaml:"stt_model"`
		TTSModel string `yaml:"tts_model"`
		TTSVoice string `yaml:"tts_voice"`
		Proxy    string `yaml:"proxy"`
	} `yaml:"openai"`

	Google struct {
		CredentialsFile string `yaml:"credentials_file"`
		TTSVoice        string `yaml:"tts_voice"`
	} `yaml:"google"`

	DatabaseURL      string        `yaml:"-"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

func Default() *Config {
	cfg := &Config{}

	cfg.Model.Path = "llama-2-7b-chat.Q5_K_M.gguf"
	cfg.Model.ServerBinary = "llama-server"
	cfg.Model.API = "native"
	cfg.Model.ContextSize = 2048
	cfg.Model.MaxTokens = 200
	cfg.Model.TopK = 40
	cfg.Model.TopP = 0.95
	cfg.Model.Temperature = 0.72
	cfg.Model.RepeatPenalty = 1.1
	cfg.Model.StartTimeout = 2 * time.Minute

	cfg.Prompt.UserLabel = "User"
	cfg.Prompt.AssistantLabel = "Ladybot"

	cfg.Speech.Backend = "espeak"
	cfg.Speech.Rate = 150
	cfg.Speech.Volume = 1.0
	cfg.Speech.Voice = "en+f3"

	cfg.Recognition.Backend = "google"
	cfg.Recognition.Device = 1
	cfg.Recognition.Language = "en-US"
	cfg.Recognition.AmbientDur = 200 * time.Millisecond
	cfg.Recognition.EnergyFloor = 0.015
	cfg.Recognition.ExitPhrase = "goodbye"
	cfg.Recognition.Earcon = true

	cfg.UI.Addr = "127.0.0.1:8765"
	cfg.UI.OpenWindow = true

	cfg.Control.Socket = filepath.Join(os.TempDir(), "ladybot.sock")

	cfg.OpenAI.Model = "gpt-3.5-turbo-instruct"
	cfg.OpenAI.STTModel = "whisper-1"
	cfg.OpenAI.TTSModel = "tts-1"
	cfg.OpenAI.TTSVoice = "nova"

	cfg.Google.TTSVoice = "en-US-Standard-C"

	cfg.MetricsNamespace = "ladybot"
	cfg.ShutdownTimeout = 10 * time.Second

	return cfg
}

// Load reads the YAML file at path (if any) and then applies environment overrides.
// An empty path falls back to ~/.ladybot.yaml when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".ladybot.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Model.Path = envOrDefault("LADYBOT_MODEL_PATH", c.Model.Path)
	c.Model.ServerBinary = envOrDefault("LADYBOT_LLAMA_SERVER", c.Model.ServerBinary)
	c.Model.API = envOrDefault("LADYBOT_MODEL_API", c.Model.API)
	c.Speech.Backend = envOrDefault("LADYBOT_TTS", c.Speech.Backend)
	c.Speech.Voice = envOrDefault("LADYBOT_TTS_VOICE", c.Speech.Voice)
	c.Recognition.Backend = envOrDefault("LADYBOT_STT", c.Recognition.Backend)
	c.Recognition.ModelPath = envOrDefault("LADYBOT_STT_MODEL", c.Recognition.ModelPath)
	c.Recognition.Language = envOrDefault("LADYBOT_STT_LANGUAGE", c.Recognition.Language)
	c.UI.Addr = envOrDefault("LADYBOT_ADDR", c.UI.Addr)
	c.UI.Hotkey = envOrDefault("LADYBOT_HOTKEY", c.UI.Hotkey)
	c.Control.Socket = envOrDefault("LADYBOT_SOCKET", c.Control.Socket)
	c.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	c.OpenAI.BaseURL = envOrDefault("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Proxy = envOrDefault("LADYBOT_PROXY", c.OpenAI.Proxy)
	c.Google.CredentialsFile = envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", c.Google.CredentialsFile)
	c.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	var err error
	c.Recognition.Device, err = intFromEnv("LADYBOT_MIC_INDEX", c.Recognition.Device)
	if err != nil {
		return err
	}
	c.Model.MaxTokens, err = intFromEnv("LADYBOT_MAX_TOKENS", c.Model.MaxTokens)
	if err != nil {
		return err
	}
	c.Speech.Rate, err = intFromEnv("LADYBOT_TTS_RATE", c.Speech.Rate)
	if err != nil {
		return err
	}
	c.Speech.Volume, err = floatFromEnv("LADYBOT_TTS_VOLUME", c.Speech.Volume)
	if err != nil {
		return err
	}
	c.ShutdownTimeout, err = durationFromEnv("LADYBOT_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	if err != nil {
		return err
	}

	return nil
}

// Validate checks ranges and enum values. It does not touch the filesystem.
func (c *Config) Validate() error {
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.Model.MaxTokens)
	}
	if c.Speech.Volume < 0 || c.Speech.Volume > 1 {
		return fmt.Errorf("speech volume must be within [0, 1], got %v", c.Speech.Volume)
	}
	if c.Speech.Rate <= 0 {
		return fmt.Errorf("speech rate must be positive, got %d", c.Speech.Rate)
	}
	if c.Recognition.Device < 0 {
		return fmt.Errorf("microphone index must be >= 0, got %d", c.Recognition.Device)
	}

	switch c.Model.API {
	case "native", "openai":
	default:
		return fmt.Errorf("unknown model api %q (expected native|openai)", c.Model.API)
	}
	switch c.Speech.Backend {
	case "espeak", "openai", "google":
	default:
		return fmt.Errorf("unknown speech backend %q (expected espeak|openai|google)", c.Speech.Backend)
	}
	switch c.Recognition.Backend {
	case "google", "whisper", "vosk", "openai":
	default:
		return fmt.Errorf("unknown recognition backend %q (expected google|whisper|vosk|openai)", c.Recognition.Backend)
	}

	return nil
}

// CheckModelPath is the startup guard: the model must be an existing regular file.
func CheckModelPath(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %q", ErrModelNotFound, path)
	}
	return nil
}

// Title is the window title shown by the UI.
func Title(now time.Time) string {
	return "Ladybot - " + Version + " - " + now.Format("2006-01-02")
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}
