package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"example.com/moodsync/internal/domain"
)

var (
	// ErrEmptyResponse is returned when the completion carries no content.
	ErrEmptyResponse = errors.New("completion has no content")
	// ErrMalformedVerdict is returned when the completion content is not the expected JSON.
	ErrMalformedVerdict = errors.New("completion is not a valid verdict")
)

const systemPrompt = "You are a wellness analysis AI. Respond only with valid JSON."

// OpenAIConfig configures the chat completions client.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIClient classifies readings through an OpenAI compatible chat completions API.
type OpenAIClient struct {
	client *resty.Client
	cfg    OpenAIConfig
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type verdict struct {
	MentalState string  `json:"mentalState"`
	Confidence  float64 `json:"confidence"`
	Analysis    struct {
		Reasoning        string   `json:"reasoning"`
		SuggestedActions []string `json:"suggestedActions"`
	} `json:"analysis"`
}

// NewOpenAIClient builds a client. Zero values fall back to the public endpoint, gpt-4,
// temperature 0.7 and 500 tokens.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &OpenAIClient{client: client, cfg: cfg}
}

// Name implements Classifier.
func (c *OpenAIClient) Name() string { return "openai" }

// Classify implements Classifier.
func (c *OpenAIClient) Classify(ctx context.Context, reading domain.Reading, annotation string) (domain.Classification, error) {
	var (
		body    chatResponse
		failure apiError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: BuildPrompt(reading, annotation)},
			},
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		}).
		SetResult(&body).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return domain.Classification{}, fmt.Errorf("chat completion request: %w", err)
	}
	if resp.IsError() {
		msg := failure.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return domain.Classification{}, fmt.Errorf("chat completion failed (%d): %s", resp.StatusCode(), msg)
	}
	if len(body.Choices) == 0 || strings.TrimSpace(body.Choices[0].Message.Content) == "" {
		return domain.Classification{}, ErrEmptyResponse
	}
	return ParseVerdict(body.Choices[0].Message.Content)
}

// BuildPrompt renders the wellness prompt for a reading.
func BuildPrompt(reading domain.Reading, annotation string) string {
	var b strings.Builder
	b.WriteString("Analyze the following health metrics and determine the user's mental state:\n\n")
	b.WriteString("Current Health Data:\n")
	fmt.Fprintf(&b, "- Heart Rate: %d bpm\n", reading.HeartRate)
	fmt.Fprintf(&b, "- Blood Oxygen: %d%%\n", reading.BloodOxygen)
	if reading.StressLevel > 0 {
		fmt.Fprintf(&b, "- Stress Level: %d/100\n", reading.StressLevel)
	} else {
		b.WriteString("- Stress Level: N/A/100\n")
	}
	fmt.Fprintf(&b, "- Activity: %d/100\n", reading.Activity)
	fmt.Fprintf(&b, "- Steps: %d\n", reading.Steps)
	fmt.Fprintf(&b, "- Calories Burned: %d\n\n", reading.Calories)
	fmt.Fprintf(&b, "User Input: %q\n\n", annotation)
	b.WriteString("Based on this data, please:\n")
	b.WriteString("1. Determine if the user is \"stressed\", \"relaxed\", or \"neutral\"\n")
	b.WriteString("2. Provide a brief reasoning for this assessment\n")
	b.WriteString("3. Suggest 2-3 actions to improve their state if needed\n\n")
	b.WriteString("Format the response as JSON:\n")
	b.WriteString(`{"mentalState": "stressed|neutral|relaxed", "confidence": 0.0-1.0, "analysis": {"reasoning": "brief explanation", "suggestedActions": ["action1", "action2"]}}`)
	return b.String()
}

// ParseVerdict decodes the JSON verdict from completion content. Markdown code fences
// around the JSON are tolerated.
func ParseVerdict(content string) (domain.Classification, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var v verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return domain.Classification{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if strings.TrimSpace(v.MentalState) == "" {
		return domain.Classification{}, fmt.Errorf("%w: missing mentalState", ErrMalformedVerdict)
	}

	return domain.Classification{
		State:            domain.MentalState(v.MentalState),
		Confidence:       v.Confidence,
		Reasoning:        v.Analysis.Reasoning,
		SuggestedActions: v.Analysis.SuggestedActions,
	}.Normalize(), nil
}
