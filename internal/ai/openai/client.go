package openai

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/ai"
	"github.com/rhysr01/jobping/internal/logger"
	"github.com/rhysr01/jobping/internal/utils"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultModel    = "text-embedding-3-small"
	defaultTimeout  = 30 * time.Second
)

// Client talks to any OpenAI compatible /embeddings endpoint.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string

	baseURL    string
	token      string
	model      string
	dimensions int
	logger     *zap.Logger
}

type Config struct {
	BaseURL    string
	Token      string
	Model      string
	Dimensions int
	UserAgent  string
	Timeout    time.Duration
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("openai api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  cfg.UserAgent,
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		model:      model,
		dimensions: cfg.Dimensions,
		logger:     logger.WithCommonFields(log, "openai", model),
	}, nil
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) ModelName() string {
	return c.model
}

// Embed ignores the task type; OpenAI embeddings are symmetric.
func (c *Client) Embed(ctx context.Context, text string, _ ai.TaskType) ([]float32, error) {
	var resp embeddingResponse
	if err := c.postJSON(ctx, c.baseURL+"/embeddings", embeddingRequest{
		Model:      c.model,
		Input:      text,
		Dimensions: c.dimensions,
	}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding values returned")
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.request(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("bad status: %s: %s", resp.Status, apiErr.Error.Message)
		}
		return fmt.Errorf("bad status: %s: %s", resp.Status, utils.TruncateForLog(string(data), 200))
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}
