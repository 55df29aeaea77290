// Package openai recognizes speech through the OpenAI audio transcription API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"ladybot/pkg/audioconv"
	"ladybot/pkg/stt"
)

type Recognizer struct {
	client   openai.Client
	model    string
	language string
}

var _ stt.Recognizer = (*Recognizer)(nil)

// New wraps a configured client. language may be a BCP-47 tag ("en-US"); only
// its primary subtag is sent. Empty means auto-detection.
func New(client openai.Client, model, language string) *Recognizer {
	if model == "" {
		model = "whisper-1"
	}
	language, _, _ = strings.Cut(language, "-")
	return &Recognizer{client: client, model: model, language: language}
}

func (r *Recognizer) Close() error { return nil }

func (r *Recognizer) Recognize(ctx context.Context, pcm16k []float32) (stt.Result, error) {
	if len(pcm16k) == 0 {
		return stt.Result{}, stt.ErrNoSpeech
	}

	wav, err := audioconv.EncodeWAV(pcm16k, stt.SampleRate)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: encode: %w", err)
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "speech.wav", "audio/wav"),
		Model: openai.AudioModel(r.model),
	}
	if r.language != "" {
		params.Language = openai.String(r.language)
	}

	tr, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: %w", err)
	}
	return stt.Check(stt.Result{Text: tr.Text, Language: r.language})
}
