// Package executor provides the cloud-side task runners the orchestrator
// dispatches to when a strategy selects cloud processing.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aabboodi/edgehub/internal/domain"
)

// Output carries what a cloud executor produced for one task.
type Output struct {
	Payload    any     `json:"payload"`
	TokensUsed int64   `json:"tokens_used"`
	Model      string  `json:"model"`
	Confidence float64 `json:"confidence"`
}

// CloudExecutor runs a task against a cloud model. Implementations must
// honor the context deadline.
type CloudExecutor interface {
	Execute(ctx context.Context, summary domain.TaskSummary, strategy domain.Strategy) (Output, error)
}

// Registry maps task types to their cloud executor.
type Registry map[domain.TaskType]CloudExecutor

// DefaultRegistry wires the built-in simulated executors for every
// supported task type.
func DefaultRegistry() Registry {
	return Registry{
		domain.TaskChat:           &ChatExecutor{Model: "edge-cloud-chat-1"},
		domain.TaskClassification: &ClassificationExecutor{Model: "edge-cloud-classify-1"},
		domain.TaskModeration:     &ModerationExecutor{Model: "edge-cloud-moderate-1"},
		domain.TaskRecommendation: &RecommendationExecutor{Model: "edge-cloud-recommend-1"},
	}
}

// simulateLatency sleeps a small context-aware delay so executor behavior
// resembles a real backend without one.
func simulateLatency(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func approxTokens(context string) int64 {
	return int64(len(context) / 4)
}

// ChatExecutor answers conversational tasks.
type ChatExecutor struct {
	Model string
}

func (e *ChatExecutor) Execute(ctx context.Context, summary domain.TaskSummary, strategy domain.Strategy) (Output, error) {
	if err := simulateLatency(ctx, 20*time.Millisecond); err != nil {
		return Output{}, err
	}
	return Output{
		Payload: map[string]any{
			"response_id": uuid.NewString(),
			"reply":       fmt.Sprintf("cloud reply for task %s", summary.TaskID),
		},
		TokensUsed: approxTokens(summary.CompressedContext) + 32,
		Model:      e.Model,
		Confidence: 0.92,
	}, nil
}

// ClassificationExecutor labels the task context.
type ClassificationExecutor struct {
	Model string
}

func (e *ClassificationExecutor) Execute(ctx context.Context, summary domain.TaskSummary, strategy domain.Strategy) (Output, error) {
	if err := simulateLatency(ctx, 10*time.Millisecond); err != nil {
		return Output{}, err
	}
	label := "general"
	if len(summary.CompressedContext) > 2000 {
		label = "long_form"
	}
	return Output{
		Payload:    map[string]any{"label": label, "scores": map[string]any{label: 0.97}},
		TokensUsed: approxTokens(summary.CompressedContext),
		Model:      e.Model,
		Confidence: 0.97,
	}, nil
}

// ModerationExecutor screens content and returns a verdict.
type ModerationExecutor struct {
	Model string
}

func (e *ModerationExecutor) Execute(ctx context.Context, summary domain.TaskSummary, strategy domain.Strategy) (Output, error) {
	if err := simulateLatency(ctx, 10*time.Millisecond); err != nil {
		return Output{}, err
	}
	return Output{
		Payload:    map[string]any{"flagged": false, "categories": []string{}},
		TokensUsed: approxTokens(summary.CompressedContext),
		Model:      e.Model,
		Confidence: 0.99,
	}, nil
}

// RecommendationExecutor produces ranked suggestions.
type RecommendationExecutor struct {
	Model string
}

func (e *RecommendationExecutor) Execute(ctx context.Context, summary domain.TaskSummary, strategy domain.Strategy) (Output, error) {
	if err := simulateLatency(ctx, 15*time.Millisecond); err != nil {
		return Output{}, err
	}
	items := make([]map[string]any, 0, 3)
	for i := 1; i <= 3; i++ {
		items = append(items, map[string]any{
			"item_id": fmt.Sprintf("rec-%s-%d", summary.TaskID, i),
			"score":   1.0 / float64(i),
		})
	}
	return Output{
		Payload:    map[string]any{"items": items},
		TokensUsed: approxTokens(summary.CompressedContext) + 16,
		Model:      e.Model,
		Confidence: 0.88,
	}, nil
}
