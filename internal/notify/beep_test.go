package notify

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/faiface/beep"
)

func drain(s beep.Streamer) [][2]float64 {
	var out [][2]float64
	buf := make([][2]float64, 256)
	for {
		n, ok := s.Stream(buf)
		out = append(out, buf[:n]...)
		if !ok {
			return out
		}
	}
}

func TestToneLength(t *testing.T) {
	got := drain(Tone(440, 100*time.Millisecond))
	if want := earconRate.N(100 * time.Millisecond); len(got) != want {
		t.Fatalf("samples = %d, want %d", len(got), want)
	}
	if got[0][0] != 0 {
		t.Fatalf("tone should fade in from silence, first = %v", got[0][0])
	}
	for i, s := range got {
		if math.Abs(s[0]) > 0.3 || s[0] != s[1] {
			t.Fatalf("sample %d = %v", i, s)
		}
	}
}

type fakePlayer struct {
	samples int
	rate    beep.SampleRate
}

func (f *fakePlayer) Play(_ context.Context, s beep.Streamer, rate beep.SampleRate) error {
	f.samples = len(drain(s))
	f.rate = rate
	return nil
}

func TestEarcon(t *testing.T) {
	p := &fakePlayer{}
	if err := Earcon(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	want := earconRate.N(80*time.Millisecond) + earconRate.N(120*time.Millisecond)
	if p.samples != want || p.rate != earconRate {
		t.Fatalf("played %d samples at %v, want %d at %v", p.samples, p.rate, want, earconRate)
	}
}
