// Package openai scores chat text with an OpenAI-compatible moderation
// endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"berryBot/internal/domain"
)

const DefaultEndpoint = "https://api.openai.com/v1/moderations"

type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Client implements domain.Classifier.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
	logger   zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		http:     client,
		logger:   logger.With().Str("component", "classifier").Logger(),
	}
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Results []struct {
		Flagged        bool               `json:"flagged"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Classify posts text to the moderation endpoint. Transport failures wrap
// domain.ErrClassifierConnection; bad statuses and bodies that do not score
// every category wrap domain.ErrClassifierResponse.
func (c *Client) Classify(ctx context.Context, text string) (domain.CategoryScores, error) {
	body, err := json.Marshal(moderationRequest{Input: text})
	if err != nil {
		return nil, fmt.Errorf("openai: %w: encode request: %v", domain.ErrClassifierResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: %w: build request: %v", domain.ErrClassifierConnection, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w: %v", domain.ErrClassifierConnection, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openai: %w: status %d: %s", domain.ErrClassifierResponse, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("openai: %w: decode: %v", domain.ErrClassifierResponse, err)
	}
	if len(decoded.Results) == 0 {
		return nil, fmt.Errorf("openai: %w: no results", domain.ErrClassifierResponse)
	}

	scores := make(domain.CategoryScores, len(domain.Categories))
	for _, category := range domain.Categories {
		if v, ok := decoded.Results[0].CategoryScores[string(category)]; ok {
			scores[category] = v
		}
	}
	if missing := scores.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("openai: %w: missing scores for %v", domain.ErrClassifierResponse, missing)
	}

	c.logger.Debug().
		Str("model", decoded.Model).
		Bool("flagged", decoded.Results[0].Flagged).
		Msg("classified")
	return scores, nil
}

// ZeroClassifier scores every category 0. It stands in when no API key is
// configured, so every message passes moderation.
type ZeroClassifier struct{}

func (ZeroClassifier) Classify(ctx context.Context, _ string) (domain.CategoryScores, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("zero classifier: %w: %v", domain.ErrClassifierConnection, err)
	}
	scores := make(domain.CategoryScores, len(domain.Categories))
	for _, category := range domain.Categories {
		scores[category] = 0
	}
	return scores, nil
}

var (
	_ domain.Classifier = (*Client)(nil)
	_ domain.Classifier = ZeroClassifier{}
)
