package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsMatchLadybot(t *testing.T) {
	cfg := Default()

	if cfg.Model.MaxTokens != 200 {
		t.Fatalf("MaxTokens = %d, want 200", cfg.Model.MaxTokens)
	}
	if cfg.Speech.Rate != 150 {
		t.Fatalf("Speech.Rate = %d, want 150", cfg.Speech.Rate)
	}
	if cfg.Speech.Volume != 1.0 {
		t.Fatalf("Speech.Volume = %v, want 1.0", cfg.Speech.Volume)
	}
	if cfg.Recognition.Device != 1 {
		t.Fatalf("Recognition.Device = %d, want 1", cfg.Recognition.Device)
	}
	if cfg.Recognition.ExitPhrase != "goodbye" {
		t.Fatalf("ExitPhrase = %q, want goodbye", cfg.Recognition.ExitPhrase)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ladybot.yaml")
	yamlDoc := `
model:
  path: /models/tiny.gguf
  max_tokens: 64
speech:
  backend: openai
  rate: 180
recognition:
  device: 3
  ambient_duration: 500ms
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LADYBOT_MIC_INDEX", "4")
	t.Setenv("LADYBOT_TTS_VOLUME", "0.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model.Path != "/models/tiny.gguf" {
		t.Fatalf("Model.Path = %q", cfg.Model.Path)
	}
	if cfg.Model.MaxTokens != 64 {
		t.Fatalf("MaxTokens = %d, want 64", cfg.Model.MaxTokens)
	}
	if cfg.Speech.Backend != "openai" || cfg.Speech.Rate != 180 {
		t.Fatalf("Speech = %+v", cfg.Speech)
	}
	if cfg.Recognition.Device != 4 {
		t.Fatalf("Recognition.Device = %d, want env override 4", cfg.Recognition.Device)
	}
	if cfg.Recognition.AmbientDur != 500*time.Millisecond {
		t.Fatalf("AmbientDur = %v, want 500ms", cfg.Recognition.AmbientDur)
	}
	if cfg.Speech.Volume != 0.5 {
		t.Fatalf("Speech.Volume = %v, want 0.5", cfg.Speech.Volume)
	}
	// Untouched sections keep their defaults.
	if cfg.Prompt.AssistantLabel != "Ladybot" {
		t.Fatalf("AssistantLabel = %q", cfg.Prompt.AssistantLabel)
	}
}

func TestLoadRejectsBadEnvNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LADYBOT_MAX_TOKENS", "lots")

	if _, err := Load(""); err == nil {
		t.Fatal("expected parse error for LADYBOT_MAX_TOKENS")
	}
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg := Default()
	cfg.Recognition.Backend = "sphinx"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown recognition backend")
	}

	cfg = Default()
	cfg.Speech.Volume = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for volume above 1")
	}
}

func TestCheckModelPath(t *testing.T) {
	dir := t.TempDir()

	if err := CheckModelPath(filepath.Join(dir, "missing.gguf")); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("missing file: err = %v, want ErrModelNotFound", err)
	}
	if err := CheckModelPath(dir); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("directory: err = %v, want ErrModelNotFound", err)
	}

	model := filepath.Join(dir, "model.gguf")
	if err := os.WriteFile(model, []byte("GGUF"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if err := CheckModelPath(model); err != nil {
		t.Fatalf("existing file: err = %v", err)
	}
}

func TestTitle(t *testing.T) {
	got := Title(time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC))
	if got != "Ladybot - 2.0 - 2024-03-09" {
		t.Fatalf("Title() = %q", got)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"LADYBOT_MODEL_PATH",
		"LADYBOT_LLAMA_SERVER",
		"LADYBOT_MODEL_API",
		"LADYBOT_TTS",
		"LADYBOT_TTS_VOICE",
		"LADYBOT_TTS_RATE",
		"LADYBOT_TTS_VOLUME",
		"LADYBOT_STT",
		"LADYBOT_STT_MODEL",
		"LADYBOT_STT_LANGUAGE",
		"LADYBOT_MIC_INDEX",
		"LADYBOT_MAX_TOKENS",
		"LADYBOT_ADDR",
		"LADYBOT_HOTKEY",
		"LADYBOT_SOCKET",
		"LADYBOT_PROXY",
		"LADYBOT_SHUTDOWN_TIMEOUT",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"GOOGLE_APPLICATION_CREDENTIALS",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
