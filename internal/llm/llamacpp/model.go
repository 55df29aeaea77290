package llamacpp

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"ladybot/internal/llm"
)

type generator interface {
	Generate(ctx context.Context, tokens []int, s llm.Sampling) (llm.Stream, error)
}

type Options struct {
	// API selects the generation route: "native" (/completion) or "openai" (/v1/completions).
	API         string
	OpenAIModel string
	HTTPClient  *http.Client
}

// Model is the loaded-model handle: tokenization always goes through the native
// API, generation through the selected route.
type Model struct {
	mu     sync.Mutex
	proc   *Process
	client *Client
	gen    generator
	closed bool
}

var _ llm.Model = (*Model)(nil)

// Load starts llama-server for the model file and returns a ready handle.
func Load(ctx context.Context, pcfg ProcessConfig, opt Options) (*Model, error) {
	proc, err := StartProcess(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	m, err := Attach(proc.BaseURL(), opt)
	if err != nil {
		_ = proc.Close()
		return nil, err
	}
	m.proc = proc
	return m, nil
}

// Attach wraps an already running server.
func Attach(baseURL string, opt Options) (*Model, error) {
	client := NewClient(baseURL, opt.HTTPClient)

	var gen generator
	switch opt.API {
	case "", "native":
		gen = client
	case "openai":
		gen = NewOpenAIGenerator(baseURL, "", opt.OpenAIModel, opt.HTTPClient)
	default:
		return nil, fmt.Errorf("llamacpp: unknown api %q", opt.API)
	}

	return &Model{client: client, gen: gen}, nil
}

func (m *Model) Tokenize(ctx context.Context, text string) ([]int, error) {
	if m.isClosed() {
		return nil, llm.ErrClosed
	}
	return m.client.Tokenize(ctx, text)
}

func (m *Model) Generate(ctx context.Context, tokens []int, s llm.Sampling) (llm.Stream, error) {
	if m.isClosed() {
		return nil, llm.ErrClosed
	}
	return m.gen.Generate(ctx, tokens, s)
}

func (m *Model) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	proc := m.proc
	m.mu.Unlock()

	if proc != nil {
		return proc.Close()
	}
	return nil
}

func (m *Model) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
