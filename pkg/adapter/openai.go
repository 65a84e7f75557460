package adapter

import (
	"context"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type OpenAIClient struct {
	client openaigo.Client
	model  string
}

type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL    string
	httpClient *http.Client
}

// WithOpenAIBaseURL points the client at an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithOpenAIHTTPClient injects the HTTP client, letting the caller add an
// instrumented transport.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *openAIConfig) {
		c.httpClient = client
	}
}

func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, goerr.New("OPENAI_API_KEY is not set")
	}
	if model == "" {
		return nil, goerr.New("openai model is not set")
	}

	cfg := &openAIConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &OpenAIClient{
		client: openaigo.NewClient(reqOpts...),
		model:  model,
	}, nil
}

func (x *OpenAIClient) Model() string {
	return x.model
}

func (x *OpenAIClient) GenerateText(ctx context.Context, req TextRequest) (*TextResult, error) {
	messages := []openaigo.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openaigo.SystemMessage(req.System))
	}
	messages = append(messages, openaigo.UserMessage(req.Prompt))

	resp, err := x.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(x.model),
		Messages: messages,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call chat completion", goerr.V("model", x.model))
	}
	if len(resp.Choices) == 0 {
		return &TextResult{Model: x.model}, nil
	}

	return &TextResult{
		Text:         resp.Choices[0].Message.Content,
		Model:        x.model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
