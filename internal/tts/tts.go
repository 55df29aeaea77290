// Package tts speaks assistant replies. Backends live in this package (cloud)
// and in tts/espeak (local, cgo).
package tts

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"strings"
)

type Voice struct {
	Rate   int     // words per minute
	Volume float64 // 0..1
	Name   string
}

func DefaultVoice() Voice {
	return Voice{Rate: 150, Volume: 1.0, Name: "en+f3"}
}

// Speaker is shared by every turn; Say blocks until playback ends.
type Speaker interface {
	Say(ctx context.Context, text string) error
	Close() error
}

// Synthesizer renders text to an encoded audio clip (mp3).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, v Voice) (io.ReadCloser, error)
}

// Player plays an mp3 clip to the default output and blocks until it ends.
type Player interface {
	PlayMP3(ctx context.Context, clip io.ReadCloser, volume float64) error
}

// Cloud speaks by synthesizing remotely and playing locally.
type Cloud struct {
	synth  Synthesizer
	player Player
	voice  Voice
}

func NewCloud(s Synthesizer, p Player, v Voice) *Cloud {
	return &Cloud{synth: s, player: p, voice: v}
}

func (c *Cloud) Say(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	clip, err := c.synth.Synthesize(ctx, text, c.voice)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	return c.player.PlayMP3(ctx, clip, c.voice.Volume)
}

// Close releases the synthesizer when it holds a connection.
func (c *Cloud) Close() error {
	if cl, ok := c.synth.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Ducker lowers other audio while speaking.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type ducking struct {
	Speaker
	d Ducker
}

// WithDucking wraps s so every utterance ducks other streams first. Ducking
// failures never block speech.
func WithDucking(s Speaker, d Ducker) Speaker {
	return &ducking{Speaker: s, d: d}
}

func (w *ducking) Say(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := w.d.Duck(ctx); err != nil {
		log.Warn("Failed to duck other streams", "err", err)
	}
	err := w.Speaker.Say(ctx, text)
	// restore even if ctx was cancelled mid-utterance
	if rerr := w.d.Restore(context.WithoutCancel(ctx)); rerr != nil {
		log.Warn("Failed to restore other streams", "err", rerr)
	}
	return err
}

// speed maps words-per-minute to the cloud APIs' relative rate (1.0 = 150 wpm).
func speed(rate int) float64 {
	if rate <= 0 {
		return 1
	}
	return max(0.25, min(float64(rate)/150, 4))
}
