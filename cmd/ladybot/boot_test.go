package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"ladybot/internal/audio"
	"ladybot/internal/config"
	"ladybot/internal/llm"
	"ladybot/internal/playback"
	"ladybot/internal/tts"
)

type nopSpeaker struct{ closed *[]string }

func (s nopSpeaker) Say(context.Context, string) error { return nil }
func (s nopSpeaker) Close() error {
	*s.closed = append(*s.closed, "speaker")
	return nil
}

type closingModel struct {
	llm.Model
	onClose func()
}

func (m closingModel) Close() error {
	m.onClose()
	return nil
}

func recordingStages(calls *[]string) stages {
	return stages{
		devices: func() ([]audio.Device, error) {
			*calls = append(*calls, "devices")
			return []audio.Device{{Index: 1, Name: "USB mic", MaxInputCh: 1}}, nil
		},
		speaker: func(context.Context, *config.Config) (tts.Speaker, *playback.Player, error) {
			*calls = append(*calls, "speaker")
			return nopSpeaker{closed: calls}, nil, nil
		},
		model: func(context.Context, *config.Config, int64) (llm.Model, error) {
			*calls = append(*calls, "model")
			return nil, errors.New("llama-server missing")
		},
		serve: func(context.Context, *config.Config, core) error {
			*calls = append(*calls, "serve")
			return nil
		},
	}
}

func TestBootGuardBuildsNothing(t *testing.T) {
	for _, path := range []string{filepath.Join(t.TempDir(), "missing.gguf"), t.TempDir()} {
		cfg := config.Default()
		cfg.Model.Path = path

		var calls []string
		err := boot(context.Background(), cfg, recordingStages(&calls))
		if !errors.Is(err, config.ErrModelNotFound) {
			t.Fatalf("boot(%q) = %v, want ErrModelNotFound", path, err)
		}
		if len(calls) != 0 {
			t.Fatalf("stages ran before the guard: %v", calls)
		}
	}
}

func TestBootOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Path = filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(cfg.Model.Path, []byte("gguf"), 0o600); err != nil {
		t.Fatal(err)
	}

	var calls []string
	err := boot(context.Background(), cfg, recordingStages(&calls))
	if err == nil {
		t.Fatal("model failure should stop boot")
	}
	want := []string{"devices", "speaker", "model", "speaker"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestBootCancelsTurnsBeforeModelCloses(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Path = filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(cfg.Model.Path, []byte("gguf"), 0o600); err != nil {
		t.Fatal(err)
	}

	var (
		calls    []string
		turnsCtx context.Context
		live     bool
	)
	st := recordingStages(&calls)
	st.model = func(context.Context, *config.Config, int64) (llm.Model, error) {
		return closingModel{onClose: func() { live = turnsCtx.Err() == nil }}, nil
	}
	st.serve = func(ctx context.Context, _ *config.Config, c core) error {
		turnsCtx = ctx
		if c.cancelTurns == nil || c.seed < 1 || c.seed > 1<<31 {
			t.Errorf("core = %+v", c)
		}
		return nil
	}

	if err := boot(context.Background(), cfg, st); err != nil {
		t.Fatal(err)
	}
	if live {
		t.Fatal("turn context still live when the model closed")
	}
}
