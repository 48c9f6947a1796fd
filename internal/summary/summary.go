// Package summary asks an OpenAI chat model for chapter summaries.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

const (
	DefaultModel    = "gpt-3.5-turbo"
	DefaultLanguage = "pt"

	// MaxInputChars is roughly 2000 tokens.
	MaxInputChars = 8000
	MaxTokens     = 400
	Temperature   = 0.7

	// EmptySummary is returned when the model answers with nothing.
	EmptySummary = "Could not generate a summary."
)

// ErrSummarization wraps every failed summary request.
var ErrSummarization = errors.New("summarization failed")

// Request is one summary request.
type Request struct {
	Text     string
	APIKey   string
	Language string
	Model    string
}

// Response carries either a summary or a user-facing error message.
type Response struct {
	Success bool   `json:"success" yaml:"success"`
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Err returns nil on success and an ErrSummarization otherwise.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSummarization, r.Error)
}

func failure(msg string) Response {
	return Response{Error: msg}
}

// Summarizer produces summaries.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) Response
}

// Client implements Summarizer with the OpenAI SDK.
type Client struct {
	log        *slog.Logger
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   uint
	delay      time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBaseURL points the client at another API host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithInterval sets the minimum time between requests.
func WithInterval(d time.Duration) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithRetry sets how often transient failures are retried.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(1, attempts)
		c.delay = delay
	}
}

// New creates a client that sends at most one request per second.
func New(opts ...Option) *Client {
	c := &Client{
		log:        slog.New(slog.DiscardHandler),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		attempts:   3,
		delay:      2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) client(apiKey string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	return openai.NewClient(opts...)
}

// Summarize requests a summary of req.Text. An empty key fails locally
// without contacting the API.
func (c *Client) Summarize(ctx context.Context, req Request) Response {
	if strings.TrimSpace(req.APIKey) == "" {
		return failure("An OpenAI API key is required. Add one in the settings.")
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	system, user := Prompts(req.Language, Truncate(req.Text))

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(MaxTokens),
		Temperature: openai.Float(Temperature),
	}

	content, err := c.complete(ctx, req.APIKey, params)
	if err != nil {
		c.log.Warn("summary request failed", "model", model, "error", err)
		return failure(userMessage(err))
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Response{Success: true, Summary: EmptySummary}
	}
	return Response{Success: true, Summary: content}
}

// TestKey sends a minimal request to check that apiKey is accepted.
func (c *Client) TestKey(ctx context.Context, apiKey string) Response {
	if strings.TrimSpace(apiKey) == "" {
		return failure("An OpenAI API key is required.")
	}
	_, err := c.complete(ctx, apiKey, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(DefaultModel),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage("Test")},
		MaxTokens:   openai.Int(5),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return failure(userMessage(err))
	}
	return Response{Success: true, Summary: "API key is valid."}
}

func (c *Client) complete(ctx context.Context, apiKey string, params openai.ChatCompletionNewParams) (string, error) {
	client := c.client(apiKey)
	resp, err := retry.DoWithData(
		func() (*openai.ChatCompletion, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter wait failed: %w", err)
			}
			return client.Chat.Completions.New(ctx, params)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("retrying summary request", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return !isQuota(apiErr)
		}
		return apiErr.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func isQuota(apiErr *openai.Error) bool {
	return apiErr.Code == "insufficient_quota" || strings.Contains(strings.ToLower(apiErr.Message), "quota")
}

// userMessage turns an API failure into the text shown to the reader.
func userMessage(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "The summary request was canceled."
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.Code == "invalid_api_key":
			return "Invalid OpenAI API key. Check your key in the settings."
		case isQuota(apiErr):
			return "OpenAI API quota exceeded. Check your OpenAI account."
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "OpenAI API rate limit exceeded. Try again in a few minutes."
		case apiErr.Message != "":
			return "OpenAI API error: " + apiErr.Message
		default:
			return fmt.Sprintf("OpenAI API error (status %d)", apiErr.StatusCode)
		}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "Could not connect to the OpenAI API. Check your internet connection."
	}
	return "OpenAI API error: " + err.Error()
}

// Truncate cuts text to MaxInputChars characters, marking the cut.
func Truncate(text string) string {
	rs := []rune(text)
	if len(rs) <= MaxInputChars {
		return text
	}
	return string(rs[:MaxInputChars]) + "..."
}
