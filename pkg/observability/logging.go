package observability

import (
	"context"
	"log/slog"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
)

// LogHooks writes tool activity to logger. Node transitions are already logged by the executor.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnToolCall: func(ctx context.Context, e *domain.ToolEvent) {
			logger.InfoContext(ctx, "tool_call", "run_id", e.RunID, "node", e.Node, "tool_name", e.ToolName, "call_id", e.CallID)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			level := slog.LevelInfo
			if e.IsError {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "tool_return",
				"run_id", e.RunID,
				"tool_name", e.ToolName,
				"call_id", e.CallID,
				"is_error", e.IsError,
				"duration", e.Duration,
			)
		},
	}
}
