package ai

import (
	"context"
	"errors"

	"github.com/rhysr01/jobping/internal/model"
)

// ErrUnavailable is returned by capabilities that are not configured or cannot be reached.
var ErrUnavailable = errors.New("ai capability unavailable")

// TaskType tells the embedding model how the vector will be used.
type TaskType string

const (
	TaskDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskQuery    TaskType = "RETRIEVAL_QUERY"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType TaskType) ([]float32, error)
	ModelName() string
}

// RankedMatch is one job scored by a reranker. Score is in 0..100.
type RankedMatch struct {
	JobHash string
	Score   float64
	Reason  string
}

// Reranker scores jobs against a profile. Implementations may be nondeterministic.
type Reranker interface {
	Rerank(ctx context.Context, prefs *model.UserPreferences, jobs []model.Job, limit int) ([]RankedMatch, error)
}
