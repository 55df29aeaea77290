package main

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math/rand/v2"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ladybot/internal/assistant"
	"ladybot/internal/audio"
	"ladybot/internal/config"
	"ladybot/internal/history"
	"ladybot/internal/httpapi"
	"ladybot/internal/input"
	"ladybot/internal/ipc"
	"ladybot/internal/llm"
	"ladybot/internal/llm/llamacpp"
	"ladybot/internal/observability"
	"ladybot/internal/playback"
	"ladybot/internal/prompt"
	"ladybot/internal/tts"
	"ladybot/internal/vad"
	"ladybot/pkg/stt"
)

// stages are the boot steps in order. Tests replace them to observe ordering.
type stages struct {
	devices func() ([]audio.Device, error)
	speaker func(ctx context.Context, cfg *config.Config) (tts.Speaker, *playback.Player, error)
	model   func(ctx context.Context, cfg *config.Config, seed int64) (llm.Model, error)
	serve   func(ctx context.Context, cfg *config.Config, core core) error
}

// core is what the first stages hand to serve.
type core struct {
	speaker tts.Speaker
	player  *playback.Player
	model   llm.Model
	seed    int64
	// cancelTurns stops every turn started from the window, socket or hotkey.
	cancelTurns context.CancelFunc
}

func defaultStages() stages {
	return stages{
		devices: audio.Devices,
		speaker: newSpeaker,
		model:   loadModel,
		serve:   serve,
	}
}

// boot refuses to build anything until the model file checks out.
func boot(ctx context.Context, cfg *config.Config, st stages) error {
	if err := config.CheckModelPath(cfg.Model.Path); err != nil {
		return err
	}
	log.Info("Booting up", "version", config.Version)

	if devices, err := st.devices(); err != nil {
		log.Warn("Failed to list input devices", "err", err)
	} else {
		for _, d := range devices {
			log.Info("Microphone", "index", d.Index, "name", d.Name)
		}
	}

	speaker, player, err := st.speaker(ctx, cfg)
	if err != nil {
		return fmt.Errorf("speech output: %w", err)
	}
	defer speaker.Close()
	log.Debug("Loaded speaker", "backend", cfg.Speech.Backend)

	seed := rand.Int64N(1<<31) + 1
	model, err := st.model(ctx, cfg, seed)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer model.Close()
	log.Info("Loaded model", "path", cfg.Model.Path, "seed", seed)

	turns, cancelTurns := context.WithCancel(ctx)
	err = st.serve(turns, cfg, core{
		speaker:     speaker,
		player:      player,
		model:       model,
		seed:        seed,
		cancelTurns: cancelTurns,
	})
	// before the model and speaker close
	cancelTurns()
	return err
}

func loadModel(ctx context.Context, cfg *config.Config, seed int64) (llm.Model, error) {
	return llamacpp.Load(ctx, llamacpp.ProcessConfig{
		Binary:       cfg.Model.ServerBinary,
		ModelPath:    cfg.Model.Path,
		Seed:         seed,
		ContextSize:  cfg.Model.ContextSize,
		Threads:      cfg.Model.Threads,
		ReadyTimeout: cfg.Model.StartTimeout,
	}, llamacpp.Options{API: cfg.Model.API, OpenAIModel: filepath.Base(cfg.Model.Path)})
}

func serve(ctx context.Context, cfg *config.Config, c core) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(cfg.MetricsNamespace, reg)

	vcfg := vad.DefaultConfig()
	vcfg.EnergyFloor = cfg.Recognition.EnergyFloor
	rec := audio.NewRecorder(cfg.Recognition.Device, vcfg)
	var capturer assistant.Capturer
	if err := rec.Init(); err != nil {
		log.Warn("Microphone unavailable, speech input disabled", "err", err)
	} else {
		defer rec.Close()
		capturer = rec
	}

	var recognizer stt.Recognizer
	if r, err := newRecognizer(ctx, cfg); err != nil {
		log.Warn("Recognizer unavailable, speech input disabled", "backend", cfg.Recognition.Backend, "err", err)
	} else {
		defer r.Close()
		recognizer = r
		log.Debug("Loaded recognizer", "backend", cfg.Recognition.Backend)
	}

	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer store.Close()

	hub := httpapi.NewHub(metrics)

	acfg := assistant.DefaultConfig()
	acfg.Template = prompt.Template{UserLabel: cfg.Prompt.UserLabel, AssistantLabel: cfg.Prompt.AssistantLabel}
	acfg.MaxTokens = cfg.Model.MaxTokens
	acfg.Ambient = cfg.Recognition.AmbientDur
	acfg.ExitPhrase = cfg.Recognition.ExitPhrase
	acfg.Sampling.TopK = cfg.Model.TopK
	acfg.Sampling.TopP = cfg.Model.TopP
	acfg.Sampling.Temperature = cfg.Model.Temperature
	acfg.Sampling.RepeatPenalty = cfg.Model.RepeatPenalty
	acfg.Sampling.Seed = c.seed

	deps := assistant.Deps{
		Model:      c.model,
		Speaker:    c.speaker,
		Recognizer: recognizer,
		Capturer:   capturer,
		Sink:       hub,
		History:    store,
		Metrics:    metrics,
	}
	if cfg.Recognition.Earcon {
		deps.Cue = listeningCue(c.player)
	}

	engine, err := assistant.New(acfg, deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.UI.Addr,
		Handler:           httpapi.New(ctx, engine, hub, metrics, config.Title(time.Now())).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	log.Info("Window ready", "url", "http://"+cfg.UI.Addr+"/ui/")

	control, err := ipc.Listen(cfg.Control.Socket, ipc.Dispatcher(ctx, engine))
	if err != nil {
		log.Warn("Control socket unavailable", "path", cfg.Control.Socket, "err", err)
	} else {
		defer control.Close()
		log.Debug("Control socket ready", "path", control.Path())
	}

	if cfg.UI.Hotkey != "" {
		hk, err := input.Bind(ctx, cfg.UI.Hotkey, engine)
		if err != nil {
			log.Warn("Hotkey unavailable", "hotkey", cfg.UI.Hotkey, "err", err)
		} else {
			defer hk.Close()
		}
	}

	if cfg.UI.OpenWindow {
		openWindow("http://" + cfg.UI.Addr + "/ui/")
	}

	log.Info("Boot up - successful")
	if err := engine.Greet(ctx); err != nil {
		log.Warn("Failed to greet", "err", err)
	}

	var runErr error
	select {
	case <-engine.Done():
		log.Info("Exit requested")
	case <-ctx.Done():
		log.Info("Signal received")
		engine.Exit()
	case runErr = <-serveErr:
		engine.Exit()
	}
	// running turns stop before the store, recognizer and recorder close
	c.cancelTurns()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", "err", err)
	}
	return runErr
}
