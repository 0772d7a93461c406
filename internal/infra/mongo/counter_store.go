package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GlobalCounterName identifies the counter shared by every topic.
const GlobalCounterName = "overall_quiz"

const maxAllocateAttempts = 5

// dayRecord keeps date as a BSON datetime at UTC midnight of the calendar day.
type dayRecord struct {
	Date time.Time `bson:"date"`
	Day  int       `bson:"day"`
}

type counterRecord struct {
	Count int `bson:"count"`
}

// CounterStore keeps numbering in Days (date -> day), Counters (per topic) and
// OverallCounter (global) collections.
type CounterStore struct {
	days     *mongo.Collection
	counters *mongo.Collection
	overall  *mongo.Collection
}

// NewCounterStore ensures the unique indexes that make concurrent allocation safe.
func NewCounterStore(ctx context.Context, client *mongo.Client, daysDatabase, countersDatabase string) (*CounterStore, error) {
	s := &CounterStore{
		days:     client.Database(daysDatabase).Collection("Days"),
		counters: client.Database(countersDatabase).Collection("Counters"),
		overall:  client.Database(countersDatabase).Collection("OverallCounter"),
	}
	indexes := []struct {
		coll  *mongo.Collection
		field string
	}{
		{s.days, "date"},
		{s.days, "day"},
		{s.counters, "collection_name"},
		{s.overall, "counter_name"},
	}
	for _, idx := range indexes {
		_, err := idx.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: idx.field, Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return nil, fmt.Errorf("create index %s.%s: %w", idx.coll.Name(), idx.field, err)
		}
	}
	return s, nil
}

func (s *CounterStore) AllocateDay(ctx context.Context, today time.Time) (int, error) {
	date := dayKey(today)
	label := date.Format(time.DateOnly)
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		var existing dayRecord
		err := s.days.FindOne(ctx, bson.M{"date": date}).Decode(&existing)
		if err == nil {
			return existing.Day, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("find day %s: %w", label, err)
		}

		var last dayRecord
		err = s.days.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "date", Value: -1}})).Decode(&last)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("find last day: %w", err)
		}

		next := dayRecord{Date: date, Day: last.Day + 1}
		if _, err := s.days.InsertOne(ctx, next); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				// another writer claimed the date or the number; re-read
				continue
			}
			return 0, fmt.Errorf("insert day %s: %w", label, err)
		}
		return next.Day, nil
	}
	return 0, fmt.Errorf("allocate day %s: too much contention", label)
}

// dayKey is the calendar date of t, in t's location, as UTC midnight.
func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *CounterStore) AllocateTopicCounter(ctx context.Context, topic string) (int, error) {
	return increment(ctx, s.counters, bson.M{"collection_name": topic})
}

func (s *CounterStore) AllocateGlobalCounter(ctx context.Context) (int, error) {
	return increment(ctx, s.overall, bson.M{"counter_name": GlobalCounterName})
}

func increment(ctx context.Context, coll *mongo.Collection, filter bson.M) (int, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{"$inc": bson.M{"count": 1}}

	var rec counterRecord
	err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec)
	if mongo.IsDuplicateKeyError(err) {
		// concurrent upserts: the loser retries as a plain update
		err = coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s %v: %w", coll.Name(), filter, err)
	}
	return rec.Count, nil
}
