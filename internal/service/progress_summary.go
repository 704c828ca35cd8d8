package service

import (
	"math"

	"github.com/noah-isme/academy-api/internal/models"
)

// Summarize computes completion figures for an enrollment. Rows outside
// 0..topicCount-1 are ignored, so stale rows never skew the result.
func Summarize(rows []models.TopicProgress, topicCount int) models.ProgressSummary {
	if topicCount < 0 {
		topicCount = 0
	}
	summary := models.ProgressSummary{TopicCount: topicCount}
	completed := make(map[int]bool, len(rows))
	for _, row := range rows {
		if row.TopicIndex < 0 || row.TopicIndex >= topicCount {
			continue
		}
		switch row.Status {
		case models.ProgressCompleted:
			if !completed[row.TopicIndex] {
				completed[row.TopicIndex] = true
				summary.CompletedCount++
			}
		case models.ProgressInProgress:
			summary.InProgressCount++
		}
	}
	if topicCount > 0 {
		summary.PercentComplete = int(math.Round(float64(summary.CompletedCount) / float64(topicCount) * 100))
	}
	for idx := 0; idx < topicCount; idx++ {
		if !completed[idx] {
			next := idx
			summary.NextTopicIndex = &next
			break
		}
	}
	return summary
}
