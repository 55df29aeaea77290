// Package assistant runs conversation turns: prompt in, streamed reply out to
// the display and the speaker, and the speech recognition loop that feeds it.
package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ladybot/internal/history"
	"ladybot/internal/llm"
	"ladybot/internal/observability"
	"ladybot/internal/prompt"
	"ladybot/internal/tts"
	"ladybot/pkg/audioconv"
	"ladybot/pkg/stt"
)

const (
	Greeting   = "Hello, I am Ladybot. Let's chat."
	Listening  = "I am listening..."
	Processing = "Processing..."
	Farewell   = "It was nice chatting with you. Goodbye."
)

var (
	ErrEmptyPrompt = errors.New("assistant: empty prompt")
	// ErrBusy is returned when listening is requested while already listening.
	ErrBusy        = errors.New("assistant: already listening")
	ErrExited      = errors.New("assistant: exited")
)

// Sink renders display events. Calls never block for long.
type Sink interface {
	Append(text string)
	ClearInput()
	Status(text string)
	// Listening reports the recognition loop starting or stopping.
	Listening(on bool)
	Closed()
}

// Capturer records one utterance after calibrating for ambient noise.
type Capturer interface {
	Listen(ctx context.Context, ambient time.Duration) ([]float32, error)
}

type Config struct {
	Template   prompt.Template
	Sampling   llm.Sampling
	MaxTokens  int
	Ambient    time.Duration
	ExitPhrase string
	// MaxFileSamples caps decoded voice messages; 0 means 60s.
	MaxFileSamples int
}

func DefaultConfig() Config {
	return Config{
		Template:   prompt.Default,
		Sampling:   llm.DefaultSampling(),
		MaxTokens:  200,
		Ambient:    200 * time.Millisecond,
		ExitPhrase: "goodbye",
	}
}

type Deps struct {
	Model      llm.Model
	Speaker    tts.Speaker
	Recognizer stt.Recognizer
	Capturer   Capturer
	// Cue plays the listening earcon; optional.
	Cue     func(ctx context.Context) error
	Sink    Sink
	History history.Store
	Metrics *observability.Metrics
}

type Engine struct {
	cfg  Config
	deps Deps

	// turn serializes typed, spoken and file turns.
	turn sync.Mutex

	mu           sync.Mutex
	display      strings.Builder
	listenCancel context.CancelFunc
	listenDone   chan struct{}

	exitOnce sync.Once
	exited   chan struct{}
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Model == nil {
		return nil, errors.New("assistant: nil model")
	}
	if deps.Speaker == nil {
		return nil, errors.New("assistant: nil speaker")
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.History == nil {
		deps.History = history.NewMemoryStore(0)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.ExitPhrase == "" {
		cfg.ExitPhrase = "goodbye"
	}
	if cfg.MaxFileSamples <= 0 {
		cfg.MaxFileSamples = 60 * stt.SampleRate
	}
	cfg.Sampling.MaxTokens = cfg.MaxTokens
	return &Engine{cfg: cfg, deps: deps, exited: make(chan struct{})}, nil
}

// Greet speaks the startup greeting.
func (e *Engine) Greet(ctx context.Context) error {
	return e.deps.Speaker.Say(ctx, Greeting)
}

// Send runs one typed turn.
func (e *Engine) Send(ctx context.Context, text string) error {
	_, err := e.runTurn(ctx, text, history.SourceText)
	return err
}

// Ask runs one typed turn and returns the reply text.
func (e *Engine) Ask(ctx context.Context, text string) (string, error) {
	return e.runTurn(ctx, text, history.SourceText)
}

func (e *Engine) runTurn(ctx context.Context, text string, src history.Source) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyPrompt
	}
	if e.isExited() {
		return "", ErrExited
	}

	e.turn.Lock()
	defer e.turn.Unlock()

	formatted := e.cfg.Template.Format(text)
	tokens, err := e.deps.Model.Tokenize(ctx, formatted)
	if err != nil {
		e.deps.Metrics.ObserveTurnError("tokenize")
		e.status("Tokenization failed: " + err.Error())
		return "", fmt.Errorf("tokenize: %w", err)
	}
	log.Debug("Prompt tokens", "count", len(tokens), "tokens", tokens)

	e.append("\n\nUser: " + text + "\n")
	e.append("\n\nLadybot: ")
	e.deps.Sink.ClearInput()

	exchange := uuid.New()
	e.save(ctx, history.NewTurn(exchange, history.RoleUser, src, text))

	reply, err := e.Generate(ctx, tokens)
	if err != nil {
		e.deps.Metrics.ObserveTurnError("generate")
		e.status("Generation failed: " + err.Error())
		return reply, fmt.Errorf("generate: %w", err)
	}

	e.save(ctx, history.NewTurn(exchange, history.RoleAssistant, src, reply))

	if err := e.deps.Speaker.Say(ctx, reply); err != nil {
		e.deps.Metrics.ObserveTurnError("speak")
		log.Error("Failed to speak reply", "err", err)
	}
	e.deps.Metrics.ObserveTurn(string(src))
	return reply, nil
}

// Generate streams a reply for the prompt tokens. Every token is appended to
// the display as soon as it arrives. Generation stops after MaxTokens emitted
// tokens or at the first end-of-sequence token, which is not emitted.
func (e *Engine) Generate(ctx context.Context, tokens []int) (string, error) {
	start := time.Now()

	stream, err := e.deps.Model.Generate(ctx, tokens, e.cfg.Sampling)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var (
		reply strings.Builder
		n     int
	)
	for n < e.cfg.MaxTokens && stream.Next() {
		tok := stream.Current()
		if tok.EOS {
			break
		}
		e.append(tok.Text)
		reply.WriteString(tok.Text)
		n++
	}
	e.deps.Metrics.ObserveGeneration(n, time.Since(start))

	if n < e.cfg.MaxTokens {
		if err := stream.Err(); err != nil {
			return reply.String(), err
		}
	}
	log.Debug("Reply generated", "tokens", n, "took", time.Since(start))
	return reply.String(), nil
}

// TranscribeFile recognizes a recorded voice message and runs it as a turn.
// It returns the transcript.
func (e *Engine) TranscribeFile(ctx context.Context, path string) (string, error) {
	if e.deps.Recognizer == nil {
		return "", errors.New("assistant: no recognizer configured")
	}
	pcm, err := audioconv.DecodeFile(ctx, path, audioconv.Options{MaxSamples: e.cfg.MaxFileSamples})
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	res, err := e.recognize(ctx, pcm)
	if err != nil {
		return "", err
	}
	_, err = e.runTurn(ctx, res.Text, history.SourceFile)
	return res.Text, err
}

// Transcript returns everything appended to the display so far.
func (e *Engine) Transcript() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.display.String()
}

// History returns up to limit persisted turns, oldest first.
func (e *Engine) History(ctx context.Context, limit int) ([]history.Turn, error) {
	return e.deps.History.Recent(ctx, limit)
}

// Exit stops listening and tells the process to shut down. Safe to call
// more than once.
func (e *Engine) Exit() {
	e.exitOnce.Do(func() {
		log.Info("Exit requested")
		e.StopListening()
		e.deps.Sink.Closed()
		close(e.exited)
	})
}

// Done is closed once Exit has been called.
func (e *Engine) Done() <-chan struct{} {
	return e.exited
}

func (e *Engine) isExited() bool {
	select {
	case <-e.exited:
		return true
	default:
		return false
	}
}

func (e *Engine) append(text string) {
	e.mu.Lock()
	e.display.WriteString(text)
	e.mu.Unlock()
	e.deps.Sink.Append(text)
}

func (e *Engine) status(text string) {
	e.deps.Sink.Status(text)
}

func (e *Engine) save(ctx context.Context, t history.Turn) {
	if err := e.deps.History.Save(ctx, t); err != nil {
		log.Warn("Failed to save turn", "role", t.Role, "err", err)
	}
}

type nopSink struct{}

func (nopSink) Append(string)  {}
func (nopSink) ClearInput()    {}
func (nopSink) Status(string)  {}
func (nopSink) Listening(bool) {}
func (nopSink) Closed()        {}
