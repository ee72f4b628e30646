// Package parser provides document parsing adapters.
// Clean Architecture: Adapter implementing ports.DocumentParser.
// Binary uploads are sent to an external text-extraction service.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ExtractionClient implements ports.DocumentParser against an HTTP extraction service
// exposing POST /parse (raw bytes in, {"text": ...} out) and GET /health.
type ExtractionClient struct {
	serviceURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewExtractionClient creates a client for the service at serviceURL.
func NewExtractionClient(serviceURL string, timeout time.Duration, logger *zap.Logger) *ExtractionClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionClient{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type parseResponse struct {
	Text    string `json:"text"`
	Pages   int    `json:"pages"`
	Library string `json:"library,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Parse extracts text from document bytes.
func (p *ExtractionClient) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", filepath.Base(filename))

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling extraction service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("extraction service returned status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("extraction failed: %s", result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extraction service returned status %d", resp.StatusCode)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", errors.New("extraction returned no text")
	}
	if !utf8.ValidString(text) {
		return "", errors.New("extraction returned invalid UTF-8")
	}

	p.logger.Debug("document extracted",
		zap.String("file", filename),
		zap.Int("pages", result.Pages),
		zap.String("library", result.Library),
		zap.Int("chars", utf8.RuneCountInString(text)),
	)
	return text, nil
}

// SupportedFormats returns formats this parser handles.
func (p *ExtractionClient) SupportedFormats() []string {
	return []string{"pdf"}
}

// Supports reports whether filename has an extension this parser handles.
func (p *ExtractionClient) Supports(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, f := range p.SupportedFormats() {
		if f == ext {
			return true
		}
	}
	return false
}

// Healthy checks the service's /health endpoint.
func (p *ExtractionClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extraction service returned status %d", resp.StatusCode)
	}
	return nil
}
