package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"ladybot/pkg/stt"
)

func newServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q", got)
		}
		if _, hdr, err := r.FormFile("file"); err != nil || hdr.Filename != "speech.wav" {
			t.Errorf("file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func client(url string) openai.Client {
	return openai.NewClient(
		option.WithBaseURL(url+"/"),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
}

func TestRecognize(t *testing.T) {
	srv := newServer(t, " Hello there. ")
	r := New(client(srv.URL), "", "en-US")

	res, err := r.Recognize(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != "Hello there." {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestRecognizeEmptyTranscript(t *testing.T) {
	srv := newServer(t, "")
	r := New(client(srv.URL), "whisper-1", "en")

	if _, err := r.Recognize(context.Background(), make([]float32, 1600)); !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestRecognizeNoAudio(t *testing.T) {
	r := New(openai.NewClient(option.WithAPIKey("test")), "", "")
	if _, err := r.Recognize(context.Background(), nil); !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}
