package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"quiz-publisher/internal/domain"
)

// QuestionStore samples questions with the server-side $sample stage.
type QuestionStore struct {
	db *mongo.Database
}

func NewQuestionStore(client *mongo.Client, database string) *QuestionStore {
	return &QuestionStore{db: client.Database(database)}
}

func (s *QuestionStore) Sample(ctx context.Context, topic string, n int) ([]domain.QuestionRecord, error) {
	records := []domain.QuestionRecord{}
	if n <= 0 {
		return records, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: n}}}},
	}
	cursor, err := s.db.Collection(topic).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("sample %q: %w", topic, err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read sample %q: %w", topic, err)
	}
	for _, doc := range docs {
		records = append(records, domain.RecordFromDocument(doc))
	}
	return records, nil
}

func (s *QuestionStore) ListTopics(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

// Insert adds question documents to the topic collection.
func (s *QuestionStore) Insert(ctx context.Context, topic string, docs ...map[string]any) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		batch[i] = bson.M(doc)
	}
	if _, err := s.db.Collection(topic).InsertMany(ctx, batch); err != nil {
		return fmt.Errorf("insert into %q: %w", topic, err)
	}
	return nil
}
