package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rhysr01/jobping/internal/ai"
)

func buildCacheKey(modelName string, taskType ai.TaskType, text string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	return "embed:" + modelName + ":" + string(taskType) + ":" + hex.EncodeToString(hash[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
