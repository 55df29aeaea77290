// Package whisper recognizes speech locally with whisper.cpp.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"ladybot/pkg/stt"
)

type Options struct {
	Language      string // "auto", "en", ...
	Threads       int    // <=0 => NumCPU()
	InitialPrompt string
	BeamSize      int // 0 = greedy
	Temperature   float32
}

type Recognizer struct {
	mu    sync.Mutex
	model whisper.Model
	opt   Options
}

var _ stt.Recognizer = (*Recognizer)(nil)

func New(modelPath string, opt Options) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model: %w", err)
	}
	return &Recognizer{model: m, opt: opt}, nil
}

func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model == nil {
		return nil
	}
	err := r.model.Close()
	r.model = nil
	return err
}

func (r *Recognizer) Recognize(ctx context.Context, pcm16k []float32) (stt.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.model == nil {
		return stt.Result{}, errors.New("whisper: recognizer closed")
	}
	if len(pcm16k) == 0 {
		return stt.Result{}, stt.ErrNoSpeech
	}

	wctx, err := r.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: new context: %w", err)
	}

	lang := r.opt.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: set language %q: %w", lang, err)
	}

	threads := r.opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if r.opt.BeamSize > 0 {
		wctx.SetBeamSize(r.opt.BeamSize)
	}
	if r.opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(r.opt.InitialPrompt)
	}
	if r.opt.Temperature != 0 {
		wctx.SetTemperature(r.opt.Temperature)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process: %w", err)
	}

	var res stt.Result
	for {
		if err := ctx.Err(); err != nil {
			return stt.Result{}, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: next segment: %w", err)
		}
		res.Segments = append(res.Segments, stt.Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
		res.Text += " " + s.Text
	}

	res.Language = wctx.DetectedLanguage()
	if res.Language == "" {
		res.Language = wctx.Language()
	}
	return stt.Check(res)
}
