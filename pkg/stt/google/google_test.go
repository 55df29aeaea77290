package google

import (
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"

	"ladybot/pkg/stt"
)

func TestRequestIsLinear16(t *testing.T) {
	req := request([]float32{0, 0.5, -0.5}, "en-US")
	cfg := req.GetConfig()
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Fatalf("encoding = %v", cfg.GetEncoding())
	}
	if cfg.GetSampleRateHertz() != 16000 || cfg.GetLanguageCode() != "en-US" {
		t.Fatalf("config = %+v", cfg)
	}
	if got := len(req.GetAudio().GetContent()); got != 6 {
		t.Fatalf("content = %d bytes, want 6", got)
	}
}

func TestResultJoinsTopAlternatives(t *testing.T) {
	resp := &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: "hello", Confidence: 0.8},
				{Transcript: "yellow", Confidence: 0.1},
			}},
			{},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: "world", Confidence: 0.6},
			}},
		},
	}
	res, err := stt.Check(result(resp, "en-US"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hello world" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Confidence < 0.69 || res.Confidence > 0.71 {
		t.Fatalf("confidence = %v, want 0.7", res.Confidence)
	}
}

func TestResultEmpty(t *testing.T) {
	_, err := stt.Check(result(&speechpb.RecognizeResponse{}, "en-US"))
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}
