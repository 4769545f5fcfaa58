package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/rhysr01/jobping/internal/ai"
	"github.com/rhysr01/jobping/internal/logger"
)

const defaultEmbeddingModel = "text-embedding-004"

type embedAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder produces vectors through the Gemini embedContent endpoint.
type Embedder struct {
	models     embedAPI
	model      string
	dimensions int
	logger     *zap.Logger
}

func NewEmbedder(client *genai.Client, model string, dimensions int, log *zap.Logger) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("gemini client is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultEmbeddingModel
	}
	return &Embedder{
		models:     client.Models,
		model:      model,
		dimensions: dimensions,
		logger:     logger.WithCommonFields(log, "gemini", model),
	}, nil
}

func (e *Embedder) ModelName() string {
	return e.model
}

func (e *Embedder) Embed(ctx context.Context, text string, taskType ai.TaskType) ([]float32, error) {
	var config *genai.EmbedContentConfig
	if taskType != "" || e.dimensions > 0 {
		config = &genai.EmbedContentConfig{TaskType: string(taskType)}
		if e.dimensions > 0 {
			dims := int32(e.dimensions)
			config.OutputDimensionality = &dims
		}
	}

	resp, err := e.models.EmbedContent(ctx, e.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("no embedding values returned")
	}

	values := resp.Embeddings[0].Values
	e.logger.Debug("embedding generated", zap.String("task_type", string(taskType)), zap.Int("dimensions", len(values)))
	return values, nil
}
