package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3/packages/ssestream"

	"ladybot/internal/llm"
)

// Client talks to llama-server's native HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return statusError("/health", res)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

type tokenizeRequest struct {
	Content    string `json:"content"`
	AddSpecial bool   `json:"add_special"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// Tokenize returns the model's token ids for text, with BOS prepended.
func (c *Client) Tokenize(ctx context.Context, text string) ([]int, error) {
	var out tokenizeResponse
	if err := c.postJSON(ctx, "/tokenize", tokenizeRequest{Content: text, AddSpecial: true}, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

type detokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

type detokenizeResponse struct {
	Content string `json:"content"`
}

func (c *Client) Detokenize(ctx context.Context, tokens []int) (string, error) {
	var out detokenizeResponse
	if err := c.postJSON(ctx, "/detokenize", detokenizeRequest{Tokens: tokens}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

type completionRequest struct {
	Prompt        []int   `json:"prompt"`
	Stream        bool    `json:"stream"`
	NPredict      int     `json:"n_predict,omitempty"`
	TopK          int     `json:"top_k"`
	TopP          float64 `json:"top_p"`
	Temperature   float64 `json:"temperature"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	Seed          int64   `json:"seed"`
	CachePrompt   bool    `json:"cache_prompt"`
}

type completionChunk struct {
	Content    string `json:"content"`
	Tokens     []int  `json:"tokens"`
	Stop       bool   `json:"stop"`
	StopType   string `json:"stop_type"`
	StoppedEOS bool   `json:"stopped_eos"`
}

func (ch completionChunk) eos() bool {
	return ch.Stop && (ch.StopType == "eos" || ch.StoppedEOS)
}

// Generate streams /completion for an already tokenized prompt.
func (c *Client) Generate(ctx context.Context, tokens []int, s llm.Sampling) (llm.Stream, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:        tokens,
		Stream:        true,
		NPredict:      s.MaxTokens,
		TopK:          s.TopK,
		TopP:          s.TopP,
		Temperature:   s.Temperature,
		RepeatPenalty: s.RepeatPenalty,
		Seed:          s.Seed,
		CachePrompt:   true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: /completion: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		return nil, statusError("/completion", res)
	}

	return &nativeStream{sse: ssestream.NewStream[completionChunk](ssestream.NewDecoder(res), nil)}, nil
}

// nativeStream turns llama-server chunks into tokens. A final chunk may carry
// both trailing text and the EOS flag, so tokens are queued.
type nativeStream struct {
	sse     *ssestream.Stream[completionChunk]
	pending []llm.Token
	cur     llm.Token
	done    bool
}

func (s *nativeStream) Next() bool {
	for len(s.pending) == 0 {
		if s.done || !s.sse.Next() {
			return false
		}
		ch := s.sse.Current()
		if ch.Content != "" {
			id := -1
			if len(ch.Tokens) > 0 {
				id = ch.Tokens[0]
			}
			s.pending = append(s.pending, llm.Token{ID: id, Text: ch.Content})
		}
		if ch.eos() {
			s.pending = append(s.pending, llm.Token{ID: -1, EOS: true})
		}
		if ch.Stop {
			s.done = true
		}
	}
	s.cur, s.pending = s.pending[0], s.pending[1:]
	return true
}

func (s *nativeStream) Current() llm.Token { return s.cur }

func (s *nativeStream) Err() error { return s.sse.Err() }

func (s *nativeStream) Close() error { return s.sse.Close() }

func (c *Client) postJSON(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llamacpp: %s: %w", endpoint, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return statusError(endpoint, res)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("llamacpp: decode %s: %w", endpoint, err)
	}
	return nil
}

func statusError(endpoint string, res *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return &StatusError{Endpoint: endpoint, Code: res.StatusCode, Body: strings.TrimSpace(string(b))}
}
