// Package report produces the narrative summary of a completed study
// session. Generation is best-effort: it runs only after every schedule
// update has been committed, and its failure never invalidates them.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/studyowl/studyowl-api/srs"
)

// Performance is one card's outcome within a finished session.
type Performance struct {
	CardID   string
	Question string
	Quality  srs.Quality
}

// Generator turns a session's performance record into prose.
type Generator interface {
	GenerateSessionReport(ctx context.Context, setTitles string, performance []Performance, userGradeLevel string) (string, error)
}

// OpenAIClient generates session reports through the OpenAI chat
// completions API.
type OpenAIClient struct {
	apiKey      string
	apiURL      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewOpenAIClient returns a report generator backed by the given model.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is not set")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		apiKey:      apiKey,
		apiURL:      "https://api.openai.com/v1/chat/completions",
		model:       model,
		maxTokens:   400,
		temperature: 0.7,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

var qualityLabels = map[srs.Quality]string{
	srs.Again: "Again (failed recall)",
	srs.Hard:  "Hard",
	srs.Good:  "Good",
	srs.Easy:  "Easy",
}

// GenerateSessionReport asks the model for a short narrative summary of the
// session's performance record.
func (c *OpenAIClient) GenerateSessionReport(ctx context.Context, setTitles string, performance []Performance, userGradeLevel string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A student just finished a flashcard study session covering: %s.\n", setTitles)
	if userGradeLevel != "" {
		fmt.Fprintf(&sb, "The student's grade level is %s; write for that level.\n", userGradeLevel)
	}
	sb.WriteString("Their card-by-card results were:\n")
	for i, p := range performance {
		fmt.Fprintf(&sb, "%d. %q — rated %s\n", i+1, p.Question, qualityLabels[p.Quality])
	}
	sb.WriteString("Write a short, encouraging report of how the session went, naming which topics to revisit.")

	request := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: "You are a supportive study coach. You summarize flashcard session results in a few short paragraphs."},
			{Role: "user", Content: sb.String()},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	requestData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(requestData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
