package llamacpp

import (
	"context"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

type ProcessConfig struct {
	Binary      string
	ModelPath   string
	Seed        int64
	ContextSize int
	Threads     int
	// ReadyTimeout bounds how long model loading may take.
	ReadyTimeout time.Duration
}

// Process is a llama-server child that owns the loaded model.
type Process struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	baseURL string
	logTail *tailBuffer
	exited  chan struct{}
	waitErr error
	closed  bool
}

// StartProcess launches llama-server on a free loopback port and blocks until
// /health reports ok, the process dies, or ctx/ReadyTimeout expires.
func StartProcess(ctx context.Context, cfg ProcessConfig) (*Process, error) {
	exe := cfg.Binary
	if exe == "" {
		exe = "llama-server"
	}

	port, err := pickFreePort()
	if err != nil {
		return nil, fmt.Errorf("llamacpp: pick port: %w", err)
	}

	tail := newTailBuffer(24 << 10)
	cmd := exec.Command(exe, buildArgs(cfg, port)...)
	cmd.Stdout = tail
	cmd.Stderr = tail

	log.Debug("Starting llama-server", "exe", exe, "model", cfg.ModelPath, "port", port, "seed", cfg.Seed)

	if err := cmd.Start(); err != nil {
		if isNotFound(err) {
			return nil, &ExecutableNotFoundError{Executable: exe}
		}
		return nil, fmt.Errorf("llamacpp: start process: %w", err)
	}

	p := &Process{
		cmd:     cmd,
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		logTail: tail,
		exited:  make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	timeout := cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.waitReady(readyCtx); err != nil {
		_ = p.Close()
		return nil, err
	}

	log.Info("llama-server ready", "url", p.baseURL)
	return p, nil
}

func buildArgs(cfg ProcessConfig, port int) []string {
	args := []string{
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"-m", cfg.ModelPath,
		"--seed", strconv.FormatInt(cfg.Seed, 10),
	}
	if cfg.ContextSize > 0 {
		args = append(args, "-c", strconv.Itoa(cfg.ContextSize))
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(cfg.Threads))
	}
	return args
}

func (p *Process) waitReady(ctx context.Context) error {
	client := NewClient(p.baseURL, nil)
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := client.Health(ctx); err == nil {
			return nil
		}

		select {
		case <-p.exited:
			code := -1
			if p.cmd.ProcessState != nil {
				code = p.cmd.ProcessState.ExitCode()
			}
			return &ExitError{ExitCode: code, Stderr: p.logTail.String()}
		case <-ctx.Done():
			msg := p.logTail.String()
			if msg == "" {
				return ErrNotReady
			}
			return fmt.Errorf("%w: %s", ErrNotReady, lastLine(msg))
		case <-ticker.C:
		}
	}
}

func (p *Process) BaseURL() string { return p.baseURL }

// Close interrupts the server and kills it if it lingers.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}

	select {
	case <-p.exited:
		return nil
	default:
	}

	_ = p.cmd.Process.Signal(os.Interrupt)
	select {
	case <-time.After(3 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.exited
	case <-p.exited:
	}
	return nil
}

func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok || addr == nil || addr.Port == 0 {
		return 0, fmt.Errorf("failed to allocate port")
	}
	return addr.Port, nil
}

type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
