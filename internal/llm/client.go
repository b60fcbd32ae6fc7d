// Package llm provides the Gemini-backed inference provider and embedder.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/easeaico/adk-task-harness/internal/inference"
	"github.com/easeaico/adk-task-harness/internal/memory"
)

const (
	DefaultModel          = "gemini-2.0-flash"
	DefaultEmbeddingModel = "text-embedding-004"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("no text in model response")
	// ErrNoEmbedding is returned when the embedding call produced no vector.
	ErrNoEmbedding = errors.New("no embedding returned")
)

// Config configures a Client. Empty model names fall back to the defaults.
type Config struct {
	APIKey            string
	Model             string
	EmbeddingModel    string
	SystemInstruction string
}

// Client wraps the Google GenAI client and provides LLM interaction methods.
type Client struct {
	client         *genai.Client
	model          string
	embeddingModel string
	genConfig      *genai.GenerateContentConfig
}

// NewClient creates a new LLM client for the Gemini API.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c := &Client{
		client:         client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = DefaultEmbeddingModel
	}
	if cfg.SystemInstruction != "" {
		c.genConfig = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		}
	}
	return c, nil
}

// Model returns the name of the generation model.
func (c *Client) Model() string {
	return c.model
}

// Respond implements inference.Provider with a single-turn generation.
func (c *Client) Respond(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.genConfig)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return responseText(resp)
}

// Embed generates an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	return firstEmbedding(resp)
}

// responseText joins the text parts of the first candidate, skipping
// thoughts.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func firstEmbedding(resp *genai.EmbedContentResponse) ([]float32, error) {
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrNoEmbedding
	}
	return resp.Embeddings[0].Values, nil
}

var (
	_ inference.Provider = (*Client)(nil)
	_ memory.Embedder    = (*Client)(nil)
)
