package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RawTopicKind tags the shape a syllabus entry was authored in.
type RawTopicKind int

const (
	RawTopicInvalid RawTopicKind = iota
	RawTopicTitle
	RawTopicRecord
)

// RawTopic is one syllabus entry decoded at the storage boundary.
// Title is set for RawTopicTitle, Record for RawTopicRecord.
type RawTopic struct {
	Kind   RawTopicKind
	Title  string
	Record TopicRecord
}

// TopicRecord is the structured form of a syllabus entry. Title is the
// resolved label (topic, then title) and empty when neither was given.
type TopicRecord struct {
	Title     string
	Duration  *string
	Content   *string
	Subtopics []string
}

// UnmarshalJSON never fails: shapes other than a string or an object decode as RawTopicInvalid.
func (t *RawTopic) UnmarshalJSON(data []byte) error {
	*t = RawTopic{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var title string
		if err := json.Unmarshal(data, &title); err == nil {
			t.Kind = RawTopicTitle
			t.Title = title
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err == nil {
			t.Kind = RawTopicRecord
			t.Record = decodeRecord(fields)
		}
	}
	return nil
}

// ParseRawTopics decodes a JSON array of syllabus entries. Anything other than an array yields nil.
func ParseRawTopics(raw []byte) []RawTopic {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var topics []RawTopic
	if err := json.Unmarshal(raw, &topics); err != nil {
		return nil
	}
	return topics
}

func decodeRecord(fields map[string]json.RawMessage) TopicRecord {
	rec := TopicRecord{}
	if title := nonBlankString(fields["topic"]); title != "" {
		rec.Title = title
	} else {
		rec.Title = nonBlankString(fields["title"])
	}
	rec.Duration = durationValue(fields["duration"])
	if content, ok := stringValue(fields["content"]); ok {
		rec.Content = &content
	}
	var items []json.RawMessage
	if raw, ok := fields["subtopics"]; ok && json.Unmarshal(raw, &items) == nil {
		for _, item := range items {
			if s := nonBlankString(item); s != "" {
				rec.Subtopics = append(rec.Subtopics, s)
			}
		}
	}
	return rec
}

func stringValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func nonBlankString(raw json.RawMessage) string {
	s, ok := stringValue(raw)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func durationValue(raw json.RawMessage) *string {
	if s := nonBlankString(raw); s != "" {
		return &s
	}
	var n json.Number
	if len(raw) > 0 && raw[0] != '"' && json.Unmarshal(raw, &n) == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			s := n.String()
			return &s
		}
	}
	return nil
}

// CanonicalTopic is the ordered, client-facing view of a syllabus entry.
// Order is the authoritative topic index. Content is nil when withheld.
type CanonicalTopic struct {
	Order     int      `json:"order"`
	Title     string   `json:"title"`
	Duration  *string  `json:"duration"`
	Content   *string  `json:"content"`
	Subtopics []string `json:"subtopics"`
}
