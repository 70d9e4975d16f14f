// Package restclient implements vision.Client over a Gemini-style
// generateContent HTTP API.
package restclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/recycle-points/internal/logging"
	"github.com/example/recycle-points/internal/vision"
)

const (
	// DefaultEndpoint is the public Generative Language API.
	DefaultEndpoint = "https://generativelanguage.googleapis.com"
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "gemini-1.5-flash"

	apiKeyHeader     = "x-goog-api-key"
	maxResponseBytes = 1 << 20
	maxErrorSnippet  = 256
)

// Config configures the HTTP transport.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client sends one generateContent request per Analyze call.
type Client struct {
	url     string
	apiKey  string
	model   string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// New validates cfg and returns a ready client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("restclient: invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = vision.DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		url:     fmt.Sprintf("%s/v1beta/models/%s:generateContent", endpoint, url.PathEscape(model)),
		apiKey:  cfg.APIKey,
		model:   model,
		timeout: timeout,
		http:    httpClient,
		logger:  logger.Named("vision_rest"),
	}, nil
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

// Analyze implements vision.Client.
func (c *Client) Analyze(ctx context.Context, req vision.Request) (*vision.Response, error) {
	const op = "restclient.analyze"

	if len(req.Image) == 0 {
		return nil, vision.NewError(vision.KindInvalidImage, op, errors.New("empty image"))
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = vision.Prompt
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{
			{Text: prompt},
			{InlineData: &inlineData{MimeType: req.MIMEType, Data: base64.StdEncoding.EncodeToString(req.Image)}},
		}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return nil, vision.NewError(vision.KindTransport, op, fmt.Errorf("encode request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, vision.NewError(vision.KindTransport, op, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}

	opLogger := logging.WithOperation(c.logger, op, "")
	start := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		verr := vision.ClassifyTransportError(op, err)
		opLogger.Warn("vision request failed", zap.Error(verr), zap.Duration("elapsed", time.Since(start)))
		return nil, verr
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		verr := vision.ClassifyTransportError(op, fmt.Errorf("read response: %w", err))
		opLogger.Warn("vision response unreadable", zap.Error(verr))
		return nil, verr
	}
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		verr := vision.NewError(kindForStatus(resp.StatusCode), op,
			fmt.Errorf("status %d: %s", resp.StatusCode, snippet(payload)))
		opLogger.Warn("vision service rejected request", zap.Int("status", resp.StatusCode), zap.Error(verr))
		return nil, verr
	}

	raw, model := extractText(payload)
	if model == "" {
		model = c.model
	}
	opLogger.Debug("vision response received", zap.Duration("latency", latency), zap.Int("bytes", len(payload)))

	return &vision.Response{Raw: raw, Model: model, Latency: latency}, nil
}

func kindForStatus(status int) vision.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return vision.KindInvalidImage
	default:
		return vision.KindTransport
	}
}

// extractText concatenates the candidate text parts. An unrecognized
// envelope is returned verbatim so the normalizer can still try it.
func extractText(payload []byte) (string, string) {
	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return string(payload), ""
	}
	var sb strings.Builder
	for _, cand := range decoded.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return string(payload), decoded.ModelVersion
	}
	return sb.String(), decoded.ModelVersion
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return s
}
