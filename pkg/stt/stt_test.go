package stt

import (
	"context"
	"errors"
	"testing"
)

func TestCheckCollapsesWhitespace(t *testing.T) {
	res, err := Check(Result{Text: "  hello \n  there  "})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Text != "hello there" {
		t.Fatalf("got %q, want %q", res.Text, "hello there")
	}
}

func TestCheckEmptyIsNoSpeech(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := Check(Result{Text: text}); !errors.Is(err, ErrNoSpeech) {
			t.Fatalf("Check(%q) err = %v, want ErrNoSpeech", text, err)
		}
	}
}

func TestRecognizerFunc(t *testing.T) {
	var r Recognizer = RecognizerFunc(func(_ context.Context, pcm []float32) (Result, error) {
		if len(pcm) != 3 {
			t.Fatalf("pcm len = %d", len(pcm))
		}
		return Result{Text: "ok"}, nil
	})
	res, err := r.Recognize(context.Background(), make([]float32, 3))
	if err != nil || res.Text != "ok" {
		t.Fatalf("got %+v, %v", res, err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}
