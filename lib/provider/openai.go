package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/icco/cinemate/lib/provider/prompts"
	"github.com/icco/cinemate/lib/validation"
	openai "github.com/sashabaranov/go-openai"
)

const (
	openAIProviderName      = "openai"
	defaultOpenAIRecommends = 10
)

type recommendationPrompt struct {
	Title string
	Count int
}

// OpenAIClient asks a chat model for TMDB ids of similar movies. The reply is
// held to the same payload schema as the ML service.
type OpenAIClient struct {
	client             *openai.Client
	model              string
	numRecommendations int
	systemPrompt       string
	userTmpl           *template.Template
	logger             *slog.Logger
}

var _ Recommender = (*OpenAIClient)(nil)

// NewOpenAIClient creates an OpenAI-backed provider. A non-positive n asks
// for ten recommendations.
func NewOpenAIClient(config openai.ClientConfig, model string, n int, logger *slog.Logger) (*OpenAIClient, error) {
	system, err := prompts.FS.ReadFile("system_openai.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file system_openai.txt: %w", err)
	}

	user, err := prompts.FS.ReadFile("recommendation_openai.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file recommendation_openai.txt: %w", err)
	}

	tmpl, err := template.New("recommendation_openai.txt").Parse(string(user))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template recommendation_openai.txt: %w", err)
	}

	if n <= 0 {
		n = defaultOpenAIRecommends
	}

	return &OpenAIClient{
		client:             openai.NewClientWithConfig(config),
		model:              model,
		numRecommendations: n,
		systemPrompt:       string(system),
		userTmpl:           tmpl,
		logger:             logger,
	}, nil
}

// Recommend makes a single chat completion request.
func (c *OpenAIClient) Recommend(ctx context.Context, title string) ([]string, error) {
	var userPrompt strings.Builder
	if err := c.userTmpl.Execute(&userPrompt, recommendationPrompt{Title: title, Count: c.numRecommendations}); err != nil {
		return nil, c.fail(fmt.Errorf("failed to generate recommendation prompt: %w", err))
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt.String()},
		},
		Temperature: 0.2,
		MaxTokens:   500,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to get OpenAI completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, c.fail(fmt.Errorf("OpenAI completion has no choices"))
	}

	parsed, err := validation.ValidateAndParseProviderResponse([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, c.fail(err)
	}

	ids := parsed.IDs()
	c.logger.DebugContext(ctx, "OpenAI returned recommendations",
		slog.String("title", title),
		slog.String("model", c.model),
		slog.Int("count", len(ids)))
	return ids, nil
}

func (c *OpenAIClient) fail(err error) error {
	pe := &ProviderError{Provider: openAIProviderName, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		pe.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		pe.StatusCode = reqErr.HTTPStatusCode
	}
	return pe
}
