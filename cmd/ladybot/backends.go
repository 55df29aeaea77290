package main

import (
	"context"
	"fmt"
	log "log/slog"
	"runtime"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"ladybot/internal/audio"
	"ladybot/internal/config"
	"ladybot/internal/notify"
	"ladybot/internal/playback"
	"ladybot/internal/proxy"
	"ladybot/internal/tts"
	"ladybot/internal/tts/espeak"
	"ladybot/pkg/stt"
	"ladybot/pkg/stt/google"
	sttopenai "ladybot/pkg/stt/openai"
	"ladybot/pkg/stt/vosk"
	"ladybot/pkg/stt/whisper"
)

func newOpenAIClient(cfg *config.Config) (openai.Client, error) {
	if cfg.OpenAI.APIKey == "" {
		return openai.Client{}, fmt.Errorf("OPENAI_API_KEY not set")
	}
	httpClient, err := proxy.NewHTTPClient(cfg.OpenAI.Proxy)
	if err != nil {
		return openai.Client{}, fmt.Errorf("proxy %q: %w", cfg.OpenAI.Proxy, err)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAI.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	return openai.NewClient(opts...), nil
}

// newSpeaker builds the configured voice. The player is returned too so the
// listening earcon shares the output device.
func newSpeaker(ctx context.Context, cfg *config.Config) (tts.Speaker, *playback.Player, error) {
	voice := tts.Voice{Rate: cfg.Speech.Rate, Volume: cfg.Speech.Volume, Name: cfg.Speech.Voice}
	player := playback.New()

	var (
		speaker tts.Speaker
		err     error
	)
	switch cfg.Speech.Backend {
	case "espeak":
		speaker, err = espeak.New(voice)
	case "openai":
		client, cerr := newOpenAIClient(cfg)
		if cerr != nil {
			return nil, nil, cerr
		}
		speaker = tts.NewCloud(tts.NewOpenAISynth(client, cfg.OpenAI.TTSModel, cfg.OpenAI.TTSVoice), player, voice)
	case "google":
		synth, gerr := tts.NewGoogleSynth(ctx, cfg.Google.CredentialsFile, cfg.Google.TTSVoice)
		if gerr != nil {
			return nil, nil, gerr
		}
		speaker = tts.NewCloud(synth, player, voice)
	default:
		err = fmt.Errorf("unknown speech backend %q", cfg.Speech.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.Speech.Duck {
		speaker = tts.WithDucking(speaker, audio.NewDucker("ladybot"))
	}
	return speaker, player, nil
}

func newRecognizer(ctx context.Context, cfg *config.Config) (stt.Recognizer, error) {
	switch cfg.Recognition.Backend {
	case "google":
		return google.New(ctx, cfg.Google.CredentialsFile, cfg.Recognition.Language)
	case "whisper":
		return whisper.New(cfg.Recognition.ModelPath, whisper.Options{
			Language: whisperLanguage(cfg.Recognition.Language),
			Threads:  runtime.NumCPU(),
		})
	case "vosk":
		return vosk.New(cfg.Recognition.ModelPath)
	case "openai":
		client, err := newOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		return sttopenai.New(client, cfg.OpenAI.STTModel, cfg.Recognition.Language), nil
	default:
		return nil, fmt.Errorf("unknown recognition backend %q", cfg.Recognition.Backend)
	}
}

// whisperLanguage turns "en-US" into "en"; empty means auto.
func whisperLanguage(tag string) string {
	if tag == "" {
		return "auto"
	}
	for i, r := range tag {
		if r == '-' || r == '_' {
			return tag[:i]
		}
	}
	return tag
}

// listeningCue chimes and raises a desktop notification before each capture.
func listeningCue(p *playback.Player) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := notify.Desktop(ctx, "Ladybot", "Listening..."); err != nil {
			log.Debug("Desktop notification failed", "err", err)
		}
		return notify.Earcon(ctx, p)
	}
}
