// Package llm provides the GigaChat chat-completion gateway.
// Clean Architecture: Adapter implementing ports.Gateway.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/metrics"
)

const (
	DefaultBaseURL = "https://gigachat.devices.sberbank.ru/api/v1"
	DefaultModel   = "GigaChat-Max"
)

// Options tune the completion request.
type Options struct {
	BaseURL           string
	Model             string
	Temperature       float64
	RepetitionPenalty float64
	Timeout           time.Duration
}

// Client implements ports.Gateway against the GigaChat REST API.
type Client struct {
	opts   Options
	tokens ports.TokenSource
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a gateway. A zero Timeout leaves the call bounded only by ctx.
func NewClient(opts Options, tokens ports.TokenSource, client *http.Client, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{opts: opts, tokens: tokens, client: client, logger: logger}
}

type chatRequest struct {
	Model             string             `json:"model"`
	Messages          []entities.Message `json:"messages"`
	Temperature       float64            `json:"temperature"`
	RepetitionPenalty float64            `json:"repetition_penalty"`
	Stream            bool               `json:"stream"`
	UpdateInterval    int                `json:"update_interval"`
}

type chatResponse struct {
	Choices []struct {
		Message entities.Message `json:"message"`
	} `json:"choices"`
}

// Complete sends the conversation and returns the trimmed text of the first choice.
// There are no retries; every failure is a *ports.GatewayError.
func (c *Client) Complete(ctx context.Context, messages []entities.Message) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	answer, status, err := c.complete(ctx, messages)
	metrics.LLMRequestDuration.WithLabelValues(c.opts.Model).Observe(time.Since(start).Seconds())
	metrics.LLMRequestsTotal.WithLabelValues(c.opts.Model, status).Inc()

	if err != nil {
		c.logger.Warn("completion failed",
			zap.String("model", c.opts.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}
	return answer, nil
}

func (c *Client) complete(ctx context.Context, messages []entities.Message) (string, string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", "auth_error", asGatewayError("token", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:             c.opts.Model,
		Messages:          messages,
		Temperature:       c.opts.Temperature,
		RepetitionPenalty: c.opts.RepetitionPenalty,
		Stream:            false,
		UpdateInterval:    0,
	})
	if err != nil {
		return "", "error", &ports.GatewayError{Op: "completion", Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", "error", &ports.GatewayError{Op: "completion", Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		gw := &ports.GatewayError{Op: "completion", Timeout: isTimeout(err), Err: err}
		if gw.Timeout {
			return "", "timeout", gw
		}
		return "", "error", gw
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", strconv.Itoa(resp.StatusCode), &ports.GatewayError{
			Op:         "completion",
			StatusCode: resp.StatusCode,
			Err:        errors.New(bodySnippet(resp.Body)),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "error", &ports.GatewayError{Op: "completion", StatusCode: resp.StatusCode, Timeout: isTimeout(err), Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", "error", &ports.GatewayError{Op: "completion", StatusCode: resp.StatusCode, Err: errors.New("response has no choices")}
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), "ok", nil
}

func asGatewayError(op string, err error) error {
	var gw *ports.GatewayError
	if errors.As(err, &gw) {
		return err
	}
	return &ports.GatewayError{Op: op, Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
