package logger

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI or embedding model identifier.
	FieldModel = "ai_model"
	// FieldUser identifies the user a matching run is computed for.
	FieldUser = "user_email"
	// FieldRunID correlates every entry of one matching run.
	FieldRunID = "run_id"
	// FieldStage names the pipeline stage that produced an entry.
	FieldStage = "stage"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the provided fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns fields describing an AI provider and model. Empty values are skipped.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// NewRunID returns a fresh identifier for a matching run.
func NewRunID() string {
	return uuid.NewString()
}

// RunFields returns the fields that tie log entries to one user's matching run.
func RunFields(email, runID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldUser, Value: email},
		StringField{Key: FieldRunID, Value: runID},
	)
}

// WithRun attaches run fields to the logger.
func WithRun(logger *zap.Logger, email, runID string) *zap.Logger {
	return WithFields(logger, RunFields(email, runID)...)
}

// Stage is shorthand for the stage field.
func Stage(name string) zap.Field {
	return zap.String(FieldStage, name)
}
