package main

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"ladybot/internal/audio"
	"ladybot/internal/config"

	// Ogg/Opus voice messages
	_ "ladybot/pkg/audioconv/opus"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configFile := cli.StringP("config", "c", "", "YAML config file (default ~/.ladybot.yaml)")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	listDevices := cli.Bool("list-devices", false, "Print input devices and exit")
	noWindow := cli.Bool("no-window", false, "Do not open the browser window")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	godotenv.Load(*envFile)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}
	if *noWindow {
		cfg.UI.OpenWindow = false
	}

	if *listDevices {
		printDevices()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = boot(ctx, cfg, defaultStages())
	switch {
	case errors.Is(err, config.ErrModelNotFound):
		fmt.Println("Error: The model path is invalid. Please check the path and try again.")
		log.Debug("Model check failed", "err", err)
		os.Exit(1)
	case err != nil:
		log.Error("Ladybot stopped", "err", err)
		os.Exit(1)
	}
}

func printDevices() {
	devices, err := audio.Devices()
	if err != nil {
		log.Error("Failed to list devices", "err", err)
		os.Exit(1)
	}
	for _, d := range devices {
		fmt.Printf("%d: %s (%d in)\n", d.Index, d.Name, d.MaxInputCh)
	}
}

func openWindow(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("Failed to open window", "url", url, "err", err)
		return
	}
	go cmd.Wait()
}
