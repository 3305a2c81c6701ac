package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// BatchInvalidate invalidates multiple patterns in batch
func BatchInvalidate(ctx context.Context, helper *CacheHelper, patterns []string) error {
	var lastErr error
	for _, pattern := range patterns {
		if err := helper.InvalidatePattern(ctx, pattern); err != nil {
			lastErr = err
			slog.ErrorContext(ctx, "Failed to invalidate pattern in batch",
				"error", err,
				"pattern", pattern)
		}
	}
	return lastErr
}

// InvalidateExamCache invalidates all exam-related caches
func InvalidateExamCache(ctx context.Context, cm *CacheManager, examID uint) {
	SafeDelete(ctx, cm.Exam,
		fmt.Sprintf("id:%d", examID),
		fmt.Sprintf("details:%d", examID))

	SafeInvalidatePattern(ctx, cm.Exam, "list:*")
	SafeInvalidatePattern(ctx, cm.Exam, "available:*")
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("exam:%d:*", examID))
}

// InvalidateQuestionCache invalidates all question-related caches
func InvalidateQuestionCache(ctx context.Context, cm *CacheManager, examID, questionID uint) {
	SafeDelete(ctx, cm.Question, fmt.Sprintf("id:%d", questionID))
	SafeInvalidatePattern(ctx, cm.Question, fmt.Sprintf("exam:%d:*", examID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("exam:%d:*", examID))
}
