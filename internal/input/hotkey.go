// Package input binds a global hotkey that toggles voice listening.
package input

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"sync"

	"golang.design/x/hotkey"
)

// Toggler is the listening control a hotkey press flips.
type Toggler interface {
	StartListening(ctx context.Context) error
	StopListening()
	IsListening() bool
}

type Hotkey struct {
	hk   *hotkey.Hotkey
	done chan struct{}
	stop context.CancelFunc
	once sync.Once
}

// Bind registers combo (e.g. "ctrl+shift+space") and flips t on every keydown
// until ctx is done or Close is called.
func Bind(ctx context.Context, combo string, t Toggler) (*Hotkey, error) {
	mods, key, err := ParseHotkey(combo)
	if err != nil {
		return nil, fmt.Errorf("invalid hotkey: %w", err)
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("register hotkey %q: %w", combo, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Hotkey{hk: hk, done: make(chan struct{}), stop: cancel}

	go func() {
		defer close(h.done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-hk.Keydown():
				if !ok {
					return
				}
				toggle(ctx, t)
			}
		}
	}()
	return h, nil
}

func toggle(ctx context.Context, t Toggler) {
	if t.IsListening() {
		log.Info("Hotkey: stop listening")
		go t.StopListening()
		return
	}
	log.Info("Hotkey: start listening")
	if err := t.StartListening(ctx); err != nil {
		log.Warn("Hotkey could not start listening", "err", err)
	}
}

func (h *Hotkey) Close() error {
	var err error
	h.once.Do(func() {
		h.stop()
		err = h.hk.Unregister()
		<-h.done
	})
	return err
}

var namedKeys = map[string]hotkey.Key{
	"space": hotkey.KeySpace, "return": hotkey.KeyReturn, "enter": hotkey.KeyReturn,
	"tab": hotkey.KeyTab, "escape": hotkey.KeyEscape, "esc": hotkey.KeyEscape,
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3, "4": hotkey.Key4,
	"5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7, "8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// ParseHotkey splits "ctrl+alt+l" into modifiers and exactly one key.
func ParseHotkey(s string) ([]hotkey.Modifier, hotkey.Key, error) {
	if strings.TrimSpace(s) == "" {
		return nil, 0, fmt.Errorf("empty hotkey")
	}

	var (
		mods  []hotkey.Modifier
		key   hotkey.Key
		found bool
	)
	for _, part := range strings.Split(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		case "alt", "option":
			mods = append(mods, modAlt())
		case "super", "win", "cmd", "command":
			mods = append(mods, modSuper())
		default:
			if found {
				return nil, 0, fmt.Errorf("multiple keys in %q", s)
			}
			k, ok := namedKeys[part]
			if !ok {
				return nil, 0, fmt.Errorf("unknown key %q", part)
			}
			key, found = k, true
		}
	}
	if !found {
		return nil, 0, fmt.Errorf("no key in %q", s)
	}
	return mods, key, nil
}
