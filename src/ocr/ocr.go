package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"screen-grader/src/logutil"
)

const (
	DefaultEndpoint = "https://api.ocr.space/parse/image"
	DefaultLanguage = "chs"
	DefaultEngine   = "2"
	DefaultTimeout  = 25 * time.Second

	maxResponseBytes = 4 << 20
)

var (
	// ErrMissingKey is returned before any request when no API key is configured.
	ErrMissingKey = errors.New("missing OCR API key, please set it with `grader-cli keys set`")
	// ErrTimeout is returned when the request does not finish within its timeout.
	ErrTimeout = errors.New("OCR request timed out")
	// ErrService covers non-2xx replies, undecodable JSON and processing errors.
	ErrService = errors.New("OCR service error")
	// ErrEmptyText is returned when the service recognized nothing.
	ErrEmptyText = errors.New("OCR empty")
)

// OCR.space response structures
type Response struct {
	ParsedResults         []ParsedResult  `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage,omitempty"`
	OCRExitCode           int             `json:"OCRExitCode"`
}

type ParsedResult struct {
	ParsedText        string `json:"ParsedText"`
	FileParseExitCode int    `json:"FileParseExitCode"`
	ErrorMessage      string `json:"ErrorMessage,omitempty"`
}

// Client talks to an OCR.space compatible endpoint.
type Client struct {
	Endpoint   string
	Language   string
	Engine     string
	HTTPClient *http.Client
}

// New returns a client with the given settings; empty values take defaults.
func New(endpoint, language, engine string) *Client {
	c := &Client{Endpoint: endpoint, Language: language, Engine: engine}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	return c
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Recognize sends a PNG to the service and returns the trimmed text of the
// first parsed result. The request is aborted once timeout elapses.
func (c *Client) Recognize(ctx context.Context, png []byte, apiKey string, timeout time.Duration) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrMissingKey
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{}
	form.Set("base64Image", "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png))
	form.Set("language", c.Language)
	form.Set("isOverlayRequired", "false")
	form.Set("OCREngine", c.Engine)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrService, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apikey", apiKey)

	log.Printf("OCR: POST %s (%d bytes image, key %s)", c.Endpoint, len(png), logutil.RedactKey(apiKey))
	start := time.Now()

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", classify(ctx, err, timeout)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classify(ctx, err, timeout)
	}
	log.Printf("OCR: HTTP %d in %v", resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrService, resp.StatusCode, truncate(string(body), 800))
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: invalid JSON response", ErrService)
	}
	if parsed.IsErroredOnProcessing {
		msg := errorMessages(parsed.ErrorMessage)
		if msg == "" {
			msg = "unknown"
		}
		return "", fmt.Errorf("%w: %s", ErrService, msg)
	}

	text := ""
	if len(parsed.ParsedResults) > 0 {
		text = strings.TrimSpace(parsed.ParsedResults[0].ParsedText)
	}
	if text == "" {
		return "", ErrEmptyText
	}
	log.Printf("OCR: recognized %d chars: %s", len([]rune(text)), logutil.Sanitize(text, 0))
	return text, nil
}

// classify maps a transport failure to ErrTimeout when our deadline fired.
func classify(ctx context.Context, err error, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("OCR request aborted: %w", ctx.Err())
	}
	return fmt.Errorf("%w: request failed: %v", ErrService, err)
}

// errorMessages accepts ErrorMessage as either a string or a list of strings.
func errorMessages(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
