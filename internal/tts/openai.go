package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/openai/openai-go/v3"
)

// OpenAISynth renders speech with the OpenAI audio speech endpoint. Voice.Name
// is ignored in favour of the configured OpenAI voice.
type OpenAISynth struct {
	client openai.Client
	model  string
	voice  string
}

func NewOpenAISynth(client openai.Client, model, voice string) *OpenAISynth {
	if model == "" {
		model = "tts-1"
	}
	if voice == "" {
		voice = "nova"
	}
	return &OpenAISynth{client: client, model: model, voice: voice}
}

func (s *OpenAISynth) Synthesize(ctx context.Context, text string, v Voice) (io.ReadCloser, error) {
	res, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          openai.Float(speed(v.Rate)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	return res.Body, nil
}
