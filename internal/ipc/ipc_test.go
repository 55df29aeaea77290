package ipc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeEngine struct {
	mu        sync.Mutex
	asked     []string
	listening bool
	exited    chan struct{}
}

func (f *fakeEngine) Ask(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if text == "" {
		return "", errors.New("assistant: empty prompt")
	}
	f.asked = append(f.asked, text)
	return "echo: " + text, nil
}

func (f *fakeEngine) StartListening(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listening = true
	return nil
}

func (f *fakeEngine) StopListening() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listening = false
}

func (f *fakeEngine) IsListening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listening
}

func (f *fakeEngine) TranscribeFile(_ context.Context, path string) (string, error) {
	return "transcript of " + filepath.Base(path), nil
}

func (f *fakeEngine) Exit() { close(f.exited) }

func startServer(t *testing.T, e Engine) string {
	t.Helper()
	// unix socket paths are length limited; keep it short
	dir, err := os.MkdirTemp("", "lb")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "c.sock")

	srv, err := Listen(path, Dispatcher(context.Background(), e))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return path
}

func TestControlRoundTrip(t *testing.T) {
	e := &fakeEngine{exited: make(chan struct{})}
	path := startServer(t, e)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := Send(ctx, path, Request{Cmd: CmdSend, Text: "hi"})
	if err != nil || res.Text != "echo: hi" {
		t.Fatalf("send = %+v, %v", res, err)
	}

	if _, err := Send(ctx, path, Request{Cmd: CmdSend}); err == nil {
		t.Fatal("empty send should fail")
	}

	if res, err := Send(ctx, path, Request{Cmd: CmdListen}); err != nil || !res.Listening {
		t.Fatalf("listen = %+v, %v", res, err)
	}
	if res, _ := Send(ctx, path, Request{Cmd: CmdStatus}); !res.Listening {
		t.Fatal("status should report listening")
	}
	if _, err := Send(ctx, path, Request{Cmd: CmdStop}); err != nil || e.IsListening() {
		t.Fatalf("stop: %v", err)
	}

	res, err = Send(ctx, path, Request{Cmd: CmdFile, Path: "/tmp/note.ogg"})
	if err != nil || res.Text != "transcript of note.ogg" {
		t.Fatalf("file = %+v, %v", res, err)
	}
	if _, err := Send(ctx, path, Request{Cmd: CmdFile}); err == nil {
		t.Fatal("file without path should fail")
	}

	if _, err := Send(ctx, path, Request{Cmd: "dance"}); err == nil {
		t.Fatal("unknown command should fail")
	}

	if _, err := Send(ctx, path, Request{Cmd: CmdExit}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-e.exited:
	case <-time.After(2 * time.Second):
		t.Fatal("exit not dispatched")
	}
}

func TestSendWithoutServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")
	if _, err := Send(context.Background(), path, Request{Cmd: CmdStatus}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "lb")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "s.sock")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	srv, err := Listen(path, func(context.Context, Request) Response { return Response{OK: true} })
	if err != nil {
		t.Fatalf("Listen over stale file: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("Close should remove the socket")
	}
}
