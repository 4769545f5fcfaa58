package gemini

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/rhysr01/jobping/internal/ai"
)

type fakeEmbedAPI struct {
	resp   *genai.EmbedContentResponse
	err    error
	model  string
	config *genai.EmbedContentConfig
	text   string
}

func (f *fakeEmbedAPI) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.text = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func TestEmbedderEmbed(t *testing.T) {
	api := &fakeEmbedAPI{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1, 0.2, 0.3}}},
	}}
	e := &Embedder{models: api, model: "text-embedding-004", dimensions: 3, logger: zap.NewNop()}

	values, err := e.Embed(context.Background(), "Graduate Analyst at Acme", ai.TaskDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(values))
	}
	if api.model != "text-embedding-004" || api.text != "Graduate Analyst at Acme" {
		t.Fatalf("unexpected request: model=%q text=%q", api.model, api.text)
	}
	if api.config == nil || api.config.TaskType != string(ai.TaskDocument) {
		t.Fatalf("expected task type to be forwarded, got %+v", api.config)
	}
	if api.config.OutputDimensionality == nil || *api.config.OutputDimensionality != 3 {
		t.Fatalf("expected output dimensionality 3")
	}
}

func TestEmbedderErrors(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeEmbedAPI
	}{
		{name: "api error", api: &fakeEmbedAPI{err: errors.New("quota")}},
		{name: "no embeddings", api: &fakeEmbedAPI{resp: &genai.EmbedContentResponse{}}},
		{name: "nil response", api: &fakeEmbedAPI{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Embedder{models: tt.api, model: "m", logger: zap.NewNop()}
			if _, err := e.Embed(context.Background(), "text", ai.TaskQuery); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
