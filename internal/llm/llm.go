// Package llm describes the loaded language model as seen by the rest of Ladybot.
// Inference itself lives in an external runtime; see package llamacpp.
package llm

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("llm: model closed")

// Token is one unit produced by the model, already decoded to text.
type Token struct {
	ID   int
	Text string
	// EOS marks the model's end-of-sequence token. It carries no text.
	EOS bool
}

// Stream yields generated tokens one at a time.
type Stream interface {
	Next() bool
	Current() Token
	Err() error
	Close() error
}

type Sampling struct {
	TopK          int
	TopP          float64
	Temperature   float64
	RepeatPenalty float64
	Seed          int64
	// MaxTokens is forwarded to the runtime as a hint; callers still enforce their own cap.
	MaxTokens int
}

func DefaultSampling() Sampling {
	return Sampling{
		TopK:          40,
		TopP:          0.95,
		Temperature:   0.72,
		RepeatPenalty: 1.1,
		MaxTokens:     200,
	}
}

type Model interface {
	Tokenize(ctx context.Context, text string) ([]int, error)
	Generate(ctx context.Context, tokens []int, s Sampling) (Stream, error)
	Close() error
}

// SliceStream replays a fixed token list. Useful for tests and canned replies.
type SliceStream struct {
	tokens []Token
	pos    int
	err    error
}

func NewSliceStream(tokens []Token, err error) *SliceStream {
	return &SliceStream{tokens: tokens, pos: -1, err: err}
}

func (s *SliceStream) Next() bool {
	if s.pos+1 >= len(s.tokens) {
		s.pos = len(s.tokens)
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Current() Token {
	if s.pos < 0 || s.pos >= len(s.tokens) {
		return Token{}
	}
	return s.tokens[s.pos]
}

func (s *SliceStream) Err() error {
	if s.pos >= len(s.tokens) {
		return s.err
	}
	return nil
}

func (s *SliceStream) Close() error { return nil }

// Consumed reports how many tokens were pulled from the stream.
func (s *SliceStream) Consumed() int {
	if s.pos < 0 {
		return 0
	}
	if s.pos >= len(s.tokens) {
		return len(s.tokens)
	}
	return s.pos + 1
}
