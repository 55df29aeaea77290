// Package google recognizes speech with Google Cloud Speech-to-Text.
package google

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"ladybot/pkg/audioconv"
	"ladybot/pkg/stt"
)

type Recognizer struct {
	client   *speech.Client
	language string
}

var _ stt.Recognizer = (*Recognizer)(nil)

// New dials the Speech API. An empty credentialsFile falls back to
// application default credentials.
func New(ctx context.Context, credentialsFile, language string) (*Recognizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google speech: %w", err)
	}
	if language == "" {
		language = "en-US"
	}
	return &Recognizer{client: client, language: language}, nil
}

func (r *Recognizer) Close() error {
	return r.client.Close()
}

func (r *Recognizer) Recognize(ctx context.Context, pcm16k []float32) (stt.Result, error) {
	if len(pcm16k) == 0 {
		return stt.Result{}, stt.ErrNoSpeech
	}

	resp, err := r.client.Recognize(ctx, request(pcm16k, r.language))
	if err != nil {
		return stt.Result{}, fmt.Errorf("google speech: recognize: %w", err)
	}
	return stt.Check(result(resp, r.language))
}

func request(pcm16k []float32, language string) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            stt.SampleRate,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioconv.PCM16(pcm16k)},
		},
	}
}

// result keeps the top alternative of every result.
func result(resp *speechpb.RecognizeResponse, language string) stt.Result {
	res := stt.Result{Language: language}
	var n int
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		res.Text += " " + alts[0].GetTranscript()
		res.Confidence += float64(alts[0].GetConfidence())
		n++
	}
	if n > 0 {
		res.Confidence /= float64(n)
	}
	return res
}
