// Package playback owns the process-wide output device.
package playback

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Rate is the fixed device rate; every clip is resampled to it.
const Rate beep.SampleRate = 44100

type Player struct {
	once    sync.Once
	initErr error
	mu      sync.Mutex
}

func New() *Player {
	return &Player{}
}

func (p *Player) init() error {
	p.once.Do(func() {
		p.initErr = speaker.Init(Rate, Rate.N(time.Second/10))
	})
	return p.initErr
}

// PlayMP3 decodes and plays clip, closing it when done.
func (p *Player) PlayMP3(ctx context.Context, clip io.ReadCloser, volume float64) error {
	streamer, format, err := mp3.Decode(clip)
	if err != nil {
		clip.Close()
		return fmt.Errorf("decode mp3: %w", err)
	}
	defer streamer.Close()

	return p.Play(ctx, Volume(streamer, volume), format.SampleRate)
}

// Play blocks until s is drained or ctx is done. Clips never overlap.
func (p *Player) Play(ctx context.Context, s beep.Streamer, rate beep.SampleRate) error {
	if err := p.init(); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if rate != Rate {
		s = beep.Resample(4, rate, Rate, s)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Volume scales s linearly; 1 leaves it untouched and 0 mutes it.
func Volume(s beep.Streamer, v float64) beep.Streamer {
	if v == 1 {
		return s
	}
	return &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   math.Log2(max(v, 1e-6)),
		Silent:   v <= 0,
	}
}
