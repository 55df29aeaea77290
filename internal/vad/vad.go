// Package vad decides where an utterance starts and ends in a stream of
// 16 kHz mono float32 frames.
package vad

import (
	"math"
	"time"
)

type Config struct {
	SampleRate int
	// EnergyFloor is the minimum RMS treated as speech, even in a silent room.
	EnergyFloor float64
	// AmbientRatio scales the calibrated ambient RMS into the speech threshold.
	AmbientRatio float64
	// Silence ends the utterance once speech has started.
	Silence time.Duration
	// MaxUtterance caps one recording after speech starts.
	MaxUtterance time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		EnergyFloor:  0.015,
		AmbientRatio: 1.5,
		Silence:      600 * time.Millisecond,
		MaxUtterance: 10 * time.Second,
	}
}

type Decision int

const (
	Waiting Decision = iota
	Speaking
	Done
)

// Endpointer collects the frames of one utterance.
type Endpointer struct {
	cfg       Config
	threshold float64

	speaking bool
	silence  time.Duration
	voiced   time.Duration
	out      []float32
}

func NewEndpointer(cfg Config) *Endpointer {
	d := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = d.SampleRate
	}
	if cfg.AmbientRatio <= 0 {
		cfg.AmbientRatio = d.AmbientRatio
	}
	if cfg.Silence <= 0 {
		cfg.Silence = d.Silence
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = d.MaxUtterance
	}
	return &Endpointer{cfg: cfg, threshold: cfg.EnergyFloor}
}

// Calibrate adjusts the threshold from frames of ambient noise.
func (e *Endpointer) Calibrate(frames [][]float32) {
	var sum float64
	var n int
	for _, f := range frames {
		for _, x := range f {
			sum += float64(x) * float64(x)
		}
		n += len(f)
	}
	if n == 0 {
		return
	}
	ambient := math.Sqrt(sum / float64(n))
	e.threshold = math.Max(e.cfg.EnergyFloor, ambient*e.cfg.AmbientRatio)
}

func (e *Endpointer) Threshold() float64 { return e.threshold }

// Push feeds one frame. Frames before speech starts are dropped; trailing
// silence up to the end-of-speech point is kept.
func (e *Endpointer) Push(frame []float32) Decision {
	dur := time.Duration(len(frame)) * time.Second / time.Duration(e.cfg.SampleRate)

	if RMS(frame) > e.threshold {
		e.speaking = true
		e.silence = 0
		e.voiced += dur
		e.out = append(e.out, frame...)
	} else if e.speaking {
		e.silence += dur
		e.voiced += dur
		e.out = append(e.out, frame...)
		if e.silence >= e.cfg.Silence {
			return Done
		}
	}

	if e.speaking && e.voiced >= e.cfg.MaxUtterance {
		return Done
	}
	if e.speaking {
		return Speaking
	}
	return Waiting
}

func (e *Endpointer) Samples() []float32 { return e.out }

func (e *Endpointer) Reset() {
	e.speaking = false
	e.silence = 0
	e.voiced = 0
	e.out = nil
}

func RMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s / float64(len(f)))
}
