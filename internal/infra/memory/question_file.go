package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quiz-publisher/internal/domain"
)

// LoadQuestionFile reads a YAML question bank: a mapping of topic to a list of
// question documents using the store field names.
func LoadQuestionFile(path string) (map[string][]domain.QuestionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string][]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	topics := make(map[string][]domain.QuestionRecord, len(raw))
	for topic, docs := range raw {
		records := make([]domain.QuestionRecord, 0, len(docs))
		for _, doc := range docs {
			records = append(records, domain.RecordFromDocument(doc))
		}
		topics[topic] = records
	}
	return topics, nil
}
