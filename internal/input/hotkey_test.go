package input

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.design/x/hotkey"
)

func TestParseHotkey(t *testing.T) {
	mods, key, err := ParseHotkey("Ctrl + Shift + Space")
	if err != nil {
		t.Fatal(err)
	}
	if key != hotkey.KeySpace || len(mods) != 2 || mods[0] != hotkey.ModCtrl || mods[1] != hotkey.ModShift {
		t.Fatalf("got %v %v", mods, key)
	}

	if _, key, err := ParseHotkey("alt+f9"); err != nil || key != hotkey.KeyF9 {
		t.Fatalf("alt+f9 = %v, %v", key, err)
	}

	for _, bad := range []string{"", "ctrl+shift", "a+b", "ctrl+pageup"} {
		if _, _, err := ParseHotkey(bad); err == nil {
			t.Errorf("ParseHotkey(%q) should fail", bad)
		}
	}
}

type fakeToggler struct {
	mu        sync.Mutex
	listening bool
	stopped   chan struct{}
}

func (f *fakeToggler) StartListening(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listening = true
	return nil
}

func (f *fakeToggler) StopListening() {
	f.mu.Lock()
	f.listening = false
	f.mu.Unlock()
	close(f.stopped)
}

func (f *fakeToggler) IsListening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listening
}

func TestToggle(t *testing.T) {
	f := &fakeToggler{stopped: make(chan struct{})}
	toggle(context.Background(), f)
	if !f.IsListening() {
		t.Fatal("first press should start listening")
	}
	toggle(context.Background(), f)
	select {
	case <-f.stopped:
	case <-time.After(time.Second):
		t.Fatal("second press should stop listening")
	}
}
