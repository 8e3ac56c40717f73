// Package gateway implements the OpenRouter-facing client every round uses
// to query a model, patterned after gomind's ai.OpenAIClient.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fieldjoshua/UltrAI-JFF/internal/apperrors"
	"github.com/fieldjoshua/UltrAI-JFF/internal/logging"
	"github.com/fieldjoshua/UltrAI-JFF/internal/resilience"
)

const (
	chatCompletionsPath = "/chat/completions"
	modelsPath          = "/models"

	dialTimeout           = 10 * time.Second
	responseHeaderTimeout = 15 * time.Second
	idleConnTimeout       = 30 * time.Second
	maxConnsPerHost       = 3

	// attemptTimeout bounds one PRIMARY_TIMEOUT attempt (matches
	// cocktail.PrimaryTimeoutSeconds) so a hung model can't blow the
	// 30s (2×15s) budget a primary slot gets before its fallback swaps in.
	attemptTimeout = 15 * time.Second
)

// Gateway is the surface the pipeline stages depend on, so tests can
// substitute a fake without standing up an HTTP server.
type Gateway interface {
	ChatCompletion(ctx context.Context, model, system, user string) (text string, err error)
	ListModels(ctx context.Context) ([]string, error)
}

// Client talks to an OpenRouter-compatible chat completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	siteURL    string
	siteName   string
	httpClient *http.Client
	logger     logging.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client against the real OpenRouter endpoint unless
// overridden with WithBaseURL (tests point this at an httptest.Server).
func New(apiKey, siteURL, siteName string, opts ...Option) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: dialTimeout,
		}).DialContext,
		ResponseHeaderTimeout: responseHeaderTimeout,
		MaxConnsPerHost:       maxConnsPerHost,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
	}
	c := &Client{
		baseURL:  "https://openrouter.ai/api/v1",
		apiKey:   apiKey,
		siteURL:  siteURL,
		siteName: siteName,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(transport),
		},
		logger: logging.NoOp{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// classifyStatus maps an OpenRouter HTTP status code to a sentinel error,
// following the same 401/402/429/5xx policy as the original client.
func classifyStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.ErrInvalidCredential
	case resp.StatusCode == http.StatusPaymentRequired:
		return apperrors.ErrInsufficientCredit
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.ErrRateLimited
	case resp.StatusCode >= 500:
		return apperrors.ErrServerError
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", apperrors.ErrServerError, resp.StatusCode, string(body))
	}
	return nil
}

// retryAfter parses a Retry-After header in seconds, capped at 10s to
// match the original client's bounded wait before giving up to a backup.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 10 * time.Second
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 10 * time.Second
	}
	if secs > 10 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

// ChatCompletion sends a single-turn chat completion request for model,
// splitting system and user content into separate messages, and returns the
// assistant's text, retrying on 429/5xx via resilience.Retry. system may be
// empty, in which case only a user message is sent (R1 has no system role).
func (c *Client) ChatCompletion(ctx context.Context, model, system, user string) (string, error) {
	var text string
	var nextWait time.Duration

	cfg := resilience.DefaultRetryConfig()
	cfg.DelayOverride = func(err error, attempt int) (time.Duration, bool) {
		return nextWait, true
	}

	err := resilience.Retry(ctx, cfg, func(err error) bool {
		return !apperrors.IsFatal(err) && apperrors.IsRetryable(err)
	}, func(attempt int) error {
		t, wait, err := c.attemptChat(ctx, model, system, user)
		nextWait = wait
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) attemptChat(ctx context.Context, model, system, user string) (text string, wait time.Duration, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	reqBody := chatRequest{
		Model:    model,
		Messages: messages,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(jsonData))
	if err != nil {
		return "", 0, fmt.Errorf("build chat request: %w", err)
	}
	c.headers(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if attemptCtx.Err() != nil {
			return "", 0, apperrors.ErrTimeout
		}
		return "", time.Second, fmt.Errorf("%w: %v", apperrors.ErrServerError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", retryAfter(resp), apperrors.ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return "", time.Second, apperrors.ErrServerError
	}
	if err := classifyStatus(resp, body); err != nil {
		return "", 0, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("parse chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("%w: no choices returned", apperrors.ErrMidStreamError)
	}
	choice := parsed.Choices[0]
	if choice.FinishReason == "error" {
		return "", 0, apperrors.ErrMidStreamError
	}

	return choice.Message.Content, 0, nil
}

// ListModels returns every model id OpenRouter currently reports, used by
// the readiness probe.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	c.headers(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrServerError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if err := classifyStatus(resp, body); err != nil {
		return nil, err
	}

	var parsed modelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse models response: %w", err)
	}

	ids := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
