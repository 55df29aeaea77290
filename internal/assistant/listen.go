package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"ladybot/internal/history"
	"ladybot/pkg/stt"
)

// captureBackoff delays the next iteration after a microphone failure.
var captureBackoff = time.Second

// StartListening runs the recognition loop in the background until
// StopListening, Exit, the exit phrase, or ctx ends it.
func (e *Engine) StartListening(ctx context.Context) error {
	if e.deps.Capturer == nil || e.deps.Recognizer == nil {
		return errors.New("assistant: speech input not configured")
	}
	if e.isExited() {
		return ErrExited
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listenCancel != nil {
		return ErrBusy
	}

	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.listenCancel, e.listenDone = cancel, done
	// under e.mu so the page sees true before the matching false
	e.deps.Sink.Listening(true)

	go func() {
		defer close(done)
		defer func() {
			e.mu.Lock()
			e.listenCancel, e.listenDone = nil, nil
			e.deps.Sink.Listening(false)
			e.mu.Unlock()
			cancel()
		}()
		if err := e.Listen(lctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Listening stopped", "err", err)
		}
	}()
	return nil
}

// StopListening cancels the background loop and waits for it to finish.
// The turn in progress, if any, is cancelled too.
func (e *Engine) StopListening() {
	e.mu.Lock()
	cancel, done := e.listenCancel, e.listenDone
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsListening reports whether the background loop is running.
func (e *Engine) IsListening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listenCancel != nil
}

// Listen is the blocking recognition loop. It returns nil after the exit
// phrase and ctx.Err() when cancelled.
func (e *Engine) Listen(ctx context.Context) error {
	e.deps.Metrics.SetListening(true)
	defer e.deps.Metrics.SetListening(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		bye, err := e.listenOnce(ctx)
		if bye {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("Listening iteration failed", "err", err)
		}
	}
}

// listenOnce runs one capture and recognize cycle. Recognition failures are
// logged and skipped; the previous transcript is never reused.
func (e *Engine) listenOnce(ctx context.Context) (bye bool, err error) {
	e.say(ctx, Listening)
	e.status(Listening)
	if e.deps.Cue != nil {
		if err := e.deps.Cue(ctx); err != nil {
			log.Debug("Earcon failed", "err", err)
		}
	}

	pcm, err := e.deps.Capturer.Listen(ctx, e.cfg.Ambient)
	if err != nil {
		if ctx.Err() == nil {
			e.status("Microphone error: " + err.Error())
			select {
			case <-time.After(captureBackoff):
			case <-ctx.Done():
			}
		}
		return false, fmt.Errorf("capture: %w", err)
	}

	e.say(ctx, Processing)
	e.status(Processing)

	res, err := e.recognize(ctx, pcm)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			log.Info("Nothing recognized")
			return false, nil
		}
		e.status("Could not understand audio")
		log.Error("Recognition failed", "err", err)
		return false, nil
	}
	log.Info("Recognized", "text", res.Text)

	if IsExitPhrase(res.Text, e.cfg.ExitPhrase) {
		e.say(context.WithoutCancel(ctx), Farewell)
		go e.Exit()
		return true, nil
	}

	if _, err := e.runTurn(ctx, res.Text, history.SourceVoice); err != nil {
		return false, err
	}
	return false, nil
}

func (e *Engine) recognize(ctx context.Context, pcm []float32) (stt.Result, error) {
	start := time.Now()
	res, err := e.deps.Recognizer.Recognize(ctx, pcm)
	if err == nil {
		res, err = stt.Check(res)
	}

	kind := ""
	switch {
	case err == nil:
	case errors.Is(err, stt.ErrNoSpeech):
		kind = "no_speech"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "cancelled"
	default:
		kind = "backend"
	}
	e.deps.Metrics.ObserveRecognition(time.Since(start), kind)
	return res, err
}

func (e *Engine) say(ctx context.Context, text string) {
	if err := e.deps.Speaker.Say(ctx, text); err != nil && ctx.Err() == nil {
		log.Warn("Failed to speak", "text", text, "err", err)
	}
}

// IsExitPhrase matches phrase ignoring case, surrounding whitespace and
// trailing periods or exclamation marks.
func IsExitPhrase(text, phrase string) bool {
	t := strings.TrimSpace(text)
	t = strings.TrimRight(t, ".!")
	return strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(phrase))
}
