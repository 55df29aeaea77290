package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

type GoogleSynth struct {
	client *texttospeech.Client
	voice  string
}

// NewGoogleSynth dials Cloud Text-to-Speech. voice is a full voice name such
// as "en-US-Standard-C"; its language prefix selects the language.
func NewGoogleSynth(ctx context.Context, credentialsFile, voice string) (*GoogleSynth, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	return &GoogleSynth{client: client, voice: voice}, nil
}

func (s *GoogleSynth) Close() error {
	return s.client.Close()
}

func (s *GoogleSynth) Synthesize(ctx context.Context, text string, v Voice) (io.ReadCloser, error) {
	resp, err := s.client.SynthesizeSpeech(ctx, synthesizeRequest(text, s.voice, v))
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	return io.NopCloser(bytes.NewReader(resp.GetAudioContent())), nil
}

func synthesizeRequest(text, voice string, v Voice) *texttospeechpb.SynthesizeSpeechRequest {
	lang := "en-US"
	if parts := strings.SplitN(voice, "-", 3); len(parts) == 3 {
		lang = parts[0] + "-" + parts[1]
	}
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  speed(v.Rate),
			VolumeGainDb:  gainDB(v.Volume),
		},
	}
}

// gainDB maps 0..1 to the API's -96..0 dB range.
func gainDB(volume float64) float64 {
	if volume >= 1 {
		return 0
	}
	if volume <= 0 {
		return -96
	}
	return max(-96, 20*math.Log10(volume))
}
