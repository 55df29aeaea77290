// Package vosk recognizes speech offline with a Kaldi model through Vosk.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"ladybot/pkg/audioconv"
	"ladybot/pkg/stt"
)

type Recognizer struct {
	mu    sync.Mutex
	model *vosk.VoskModel
	rec   *vosk.VoskRecognizer
}

var _ stt.Recognizer = (*Recognizer)(nil)

func New(modelPath string) (*Recognizer, error) {
	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %s: %w", modelPath, err)
	}
	if model == nil {
		return nil, fmt.Errorf("vosk: load model %s: nil model", modelPath)
	}

	rec, err := vosk.NewRecognizer(model, stt.SampleRate)
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("vosk: recognizer: %w", err)
	}
	rec.SetWords(1)

	return &Recognizer{model: model, rec: rec}, nil
}

func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Free()
		r.rec = nil
	}
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}

// Recognize feeds the whole utterance and reads the final result, which also
// resets the recognizer for the next call.
func (r *Recognizer) Recognize(ctx context.Context, pcm16k []float32) (stt.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec == nil {
		return stt.Result{}, errors.New("vosk: recognizer closed")
	}
	if len(pcm16k) == 0 {
		return stt.Result{}, stt.ErrNoSpeech
	}

	data := audioconv.PCM16(pcm16k)
	const chunk = 8000 // 250ms
	for off := 0; off < len(data); off += chunk {
		if err := ctx.Err(); err != nil {
			r.rec.Reset()
			return stt.Result{}, err
		}
		end := min(off+chunk, len(data))
		if r.rec.AcceptWaveform(data[off:end]) < 0 {
			r.rec.Reset()
			return stt.Result{}, errors.New("vosk: waveform rejected")
		}
	}

	res, err := parseResult(r.rec.FinalResult())
	if err != nil {
		return stt.Result{}, err
	}
	return stt.Check(res)
}

type result struct {
	Text   string `json:"text"`
	Result []struct {
		Conf  float64 `json:"conf"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Word  string  `json:"word"`
	} `json:"result,omitempty"`
}

func parseResult(raw string) (stt.Result, error) {
	var v result
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return stt.Result{}, fmt.Errorf("vosk: parse result: %w", err)
	}

	res := stt.Result{Text: v.Text}
	for _, w := range v.Result {
		res.Confidence += w.Conf
		res.Segments = append(res.Segments, stt.Segment{Text: w.Word, StartSec: w.Start, EndSec: w.End})
	}
	if n := len(v.Result); n > 0 {
		res.Confidence /= float64(n)
	}
	return res, nil
}
