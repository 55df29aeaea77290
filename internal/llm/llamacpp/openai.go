package llamacpp

import (
	"context"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"ladybot/internal/llm"
)

// OpenAIGenerator streams completions through llama-server's OpenAI-compatible
// /v1/completions route (or any server speaking that dialect).
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAIGenerator(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIGenerator {
	if apiKey == "" {
		apiKey = "no-key"
	}
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/v1/"),
		option.WithAPIKey(apiKey),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIGenerator{client: openai.NewClient(opts...), model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, tokens []int, s llm.Sampling) (llm.Stream, error) {
	prompt := make([]int64, len(tokens))
	for i, t := range tokens {
		prompt[i] = int64(t)
	}

	params := openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(g.model),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfArrayOfTokens: prompt},
		Temperature: openai.Float(s.Temperature),
		TopP:        openai.Float(s.TopP),
		Seed:        openai.Int(s.Seed),
	}
	if s.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(s.MaxTokens))
	}

	stream := g.client.Completions.NewStreaming(ctx, params,
		option.WithJSONSet("top_k", s.TopK),
		option.WithJSONSet("repeat_penalty", s.RepeatPenalty),
	)
	return &openAIStream{sse: stream}, nil
}

type openAIStream struct {
	sse     *ssestream.Stream[openai.Completion]
	pending []llm.Token
	cur     llm.Token
	done    bool
}

func (s *openAIStream) Next() bool {
	for len(s.pending) == 0 {
		if s.done || !s.sse.Next() {
			return false
		}
		chunk := s.sse.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Text != "" {
			s.pending = append(s.pending, llm.Token{ID: -1, Text: choice.Text})
		}
		switch choice.FinishReason {
		case openai.CompletionChoiceFinishReasonStop:
			s.pending = append(s.pending, llm.Token{ID: -1, EOS: true})
			s.done = true
		case openai.CompletionChoiceFinishReasonLength, openai.CompletionChoiceFinishReasonContentFilter:
			s.done = true
		}
	}
	s.cur, s.pending = s.pending[0], s.pending[1:]
	return true
}

func (s *openAIStream) Current() llm.Token { return s.cur }

func (s *openAIStream) Err() error { return s.sse.Err() }

func (s *openAIStream) Close() error { return s.sse.Close() }
