package audio

import (
	"context"
	"strings"
	"sync"
	"testing"
)

const sinkInputs = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "ladybot"
Sink Input #bogus
	Volume: 10%
`

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)
	if len(got) != 2 {
		t.Fatalf("parsed %d inputs, want 2: %+v", len(got), got)
	}
	if got[0] != (sinkInput{ID: 41, Volume: 80, AppName: "Firefox"}) {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].AppName != "ladybot" || got[1].Volume != 100 {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestDuckerSkipsSelfAndRestores(t *testing.T) {
	var (
		mu  sync.Mutex
		set []string
	)
	orig := pactl
	t.Cleanup(func() { pactl = orig })
	pactl = func(_ context.Context, args ...string) ([]byte, error) {
		if args[0] == "list" {
			return []byte(sinkInputs), nil
		}
		mu.Lock()
		set = append(set, strings.Join(args[1:], " "))
		mu.Unlock()
		return nil, nil
	}

	d := NewDucker("ladybot")
	d.FadeDown, d.FadeUp = 0, 0

	if err := d.Duck(context.Background()); err != nil {
		t.Fatalf("Duck: %v", err)
	}
	if len(set) != 1 || set[0] != "41 24%" {
		t.Fatalf("duck calls = %v, want [41 24%%]", set)
	}

	// second Duck is a no-op
	if err := d.Duck(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(set) != 1 {
		t.Fatalf("repeated Duck touched volumes: %v", set)
	}

	set = nil
	if err := d.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(set) != 1 || set[0] != "41 80%" {
		t.Fatalf("restore calls = %v, want [41 80%%]", set)
	}
}
