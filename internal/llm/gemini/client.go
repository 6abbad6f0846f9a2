// Package gemini adapts the Google GenAI SDK to the classifier backend and
// chat generator contracts.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/mohammed-shakir/geoquery/internal/intent"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey      string
	Model       string
	Temperature float64
}

// contentGenerator is the subset of *genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models contentGenerator
	model  string
	temp   float32
}

func New(ctx context.Context, cfg Config, hc *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key not configured: %w", intent.ErrUnauthorized)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newWith(gc.Models, cfg), nil
}

func newWith(m contentGenerator, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{models: m, model: cfg.Model, temp: float32(cfg.Temperature)}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, "application/json")
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, "")
}

func (c *Client) generate(ctx context.Context, prompt, mime string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.temp),
		ResponseMIMEType: mime,
	}
	resp, err := c.models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
			return "", fmt.Errorf("gemini: %s: %w", apiErr.Message, intent.ErrUnauthorized)
		}
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}
