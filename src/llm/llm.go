package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"screen-grader/src/logutil"
)

const (
	DefaultBaseURL = "https://api.moonshot.cn/v1"
	DefaultModel   = "kimi-k2-turbo-preview"
	DefaultTimeout = 25 * time.Second

	// KeyPrefix is required on every Moonshot API key.
	KeyPrefix = "sk-"

	maxErrorBody     = 800
	maxResponseBytes = 4 << 20
)

var (
	// ErrAuth is returned before any request when the key is missing or malformed.
	ErrAuth = errors.New("missing/invalid Kimi API key, please set it with `grader-cli keys set`")
	// ErrTimeout is returned when the request does not finish within its timeout.
	ErrTimeout = errors.New("Kimi request timed out")
	// ErrService covers non-2xx replies and undecodable responses.
	ErrService = errors.New("Kimi service error")
)

// StatusError is a non-2xx reply. Body is cut to 800 characters.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrService }

// Chat completion API structures
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type ChatResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Content string `json:"content"`
}

type APIError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"` // Can be string or number
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// New returns a client; empty values take the Moonshot defaults.
func New(baseURL, model string) *Client {
	c := &Client{BaseURL: strings.TrimRight(baseURL, "/"), Model: model}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	return c
}

// ValidKey reports whether key looks like a usable API key.
func ValidKey(key string) bool {
	return strings.HasPrefix(strings.TrimSpace(key), KeyPrefix)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Interpret sends prompt as the single user message at temperature 0 and
// returns the trimmed content of the first choice.
func (c *Client) Interpret(ctx context.Context, prompt, apiKey string, timeout time.Duration) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if !ValidKey(apiKey) {
		return "", ErrAuth
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request := ChatRequest{
		Model:       c.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	}
	resp, err := c.makeAPIRequest(ctx, request, apiKey)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		return "", err
	}

	if len(resp.Choices) == 0 {
		if resp.Error != nil {
			return "", fmt.Errorf("%w: %s", ErrService, resp.Error.Message)
		}
		return "", nil
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Printf("LLM: %d chars: %s", len([]rune(out)), logutil.Sanitize(out, 0))
	return out, nil
}

func (c *Client) makeAPIRequest(ctx context.Context, request ChatRequest, apiKey string) (*ChatResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	log.Printf("LLM: POST %s model=%s prompt=%d chars key=%s", url, request.Model, len([]rune(request.Messages[0].Content)), logutil.RedactKey(apiKey))
	start := time.Now()

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("LLM request aborted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: API request failed: %v", ErrService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("LLM response aborted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrService, err)
	}
	log.Printf("LLM: HTTP %d in %v", resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	var response ChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrService, err)
	}
	return &response, nil
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
