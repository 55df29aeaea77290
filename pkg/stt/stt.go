// Package stt defines the speech recognizer contract shared by the backends in
// its subpackages.
package stt

import (
	"context"
	"errors"
	"strings"
)

// SampleRate is the rate every Recognizer expects its PCM at.
const SampleRate = 16000

// ErrNoSpeech means the backend heard nothing it could transcribe.
var ErrNoSpeech = errors.New("stt: no speech recognized")

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text       string
	Segments   []Segment
	Language   string
	Confidence float64
}

// Recognizer turns one utterance of mono 16 kHz float32 PCM into text.
type Recognizer interface {
	Recognize(ctx context.Context, pcm16k []float32) (Result, error)
	Close() error
}

// Check normalizes a backend transcript and maps an empty one to ErrNoSpeech.
func Check(res Result) (Result, error) {
	res.Text = strings.Join(strings.Fields(res.Text), " ")
	if res.Text == "" {
		return Result{}, ErrNoSpeech
	}
	return res, nil
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, pcm16k []float32) (Result, error)

func (f RecognizerFunc) Recognize(ctx context.Context, pcm16k []float32) (Result, error) {
	return f(ctx, pcm16k)
}

func (RecognizerFunc) Close() error { return nil }
