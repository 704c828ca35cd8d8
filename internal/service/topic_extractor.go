package service

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"

	"github.com/noah-isme/academy-api/internal/models"
)

// ExtractTopics normalises a course syllabus into ordered canonical topics.
// Only self-paced courses have topics. Malformed entries are dropped and the
// survivors are re-indexed from zero, so raw order is authoritative.
// Content is withheld unless includeContent is set.
func ExtractTopics(course *models.Course, includeContent bool) []models.CanonicalTopic {
	if course == nil || !course.IsSelfPaced() {
		return []models.CanonicalTopic{}
	}
	raw := models.ParseRawTopics(course.Topics)
	topics := make([]models.CanonicalTopic, 0, len(raw))
	for _, entry := range raw {
		order := len(topics)
		topic := models.CanonicalTopic{Order: order, Subtopics: []string{}}
		switch entry.Kind {
		case models.RawTopicTitle:
			topic.Title = strings.TrimSpace(entry.Title)
		case models.RawTopicRecord:
			topic.Title = entry.Record.Title
			topic.Duration = entry.Record.Duration
			if includeContent && entry.Record.Content != nil {
				content := *entry.Record.Content
				topic.Content = &content
			}
			if len(entry.Record.Subtopics) > 0 {
				topic.Subtopics = append(topic.Subtopics, entry.Record.Subtopics...)
			}
		default:
			continue
		}
		if topic.Title == "" {
			topic.Title = fmt.Sprintf("Topic %d", order+1)
		}
		topics = append(topics, topic)
	}
	return topics
}

// TopicKey derives the display key stored alongside progress rows.
// Keys are not identities; distinct titles may share a key.
func TopicKey(title string) *string {
	key := slug.Make(title)
	if key == "" {
		return nil
	}
	return &key
}
