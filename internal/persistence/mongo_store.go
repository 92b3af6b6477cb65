package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/rewind/pkg/api"
)

// MongoHistoryStore is a HistoryStore backed by MongoDB. Each instance is a
// single document holding its identity and its history as an array of
// gob-encoded events; appends use a filtered $push on the stored version so
// that concurrent appends fail with ErrHistoryConflict instead of
// interleaving.
type MongoHistoryStore struct {
	coll *mongo.Collection
}

var _ HistoryStore = (*MongoHistoryStore)(nil)

type mongoInstanceDoc struct {
	ID        string   `bson:"_id"`
	Workflow  string   `bson:"workflow"`
	Status    string   `bson:"status"`
	Input     []byte   `bson:"input,omitempty"`
	Output    []byte   `bson:"output,omitempty"`
	Detail    string   `bson:"detail,omitempty"`
	Version   int      `bson:"version"`
	CreatedAt int64    `bson:"created_at"`
	History   [][]byte `bson:"history"`
}

// NewMongoHistoryStore creates a Mongo-backed history store.
// dbName defaults to "rewind" if empty, collName defaults to "instances".
func NewMongoHistoryStore(client *mongo.Client, dbName, collName string) *MongoHistoryStore {
	if dbName == "" {
		dbName = "rewind"
	}
	if collName == "" {
		collName = "instances"
	}
	return &MongoHistoryStore{coll: client.Database(dbName).Collection(collName)}
}

func (s *MongoHistoryStore) CreateInstance(ctx context.Context, rec InstanceRecord) error {
	if rec.Status == "" {
		rec.Status = api.StatusRunning
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	input, err := EncodeValue(rec.Input)
	if err != nil {
		return err
	}

	doc := mongoInstanceDoc{
		ID:        rec.ID,
		Workflow:  rec.Workflow,
		Status:    string(rec.Status),
		Input:     input,
		CreatedAt: createdAt.UnixNano(),
		History:   [][]byte{},
	}
	_, err = s.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrInstanceExists
	}
	return err
}

func (s *MongoHistoryStore) Append(ctx context.Context, instanceID string, expectedVersion int, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	encoded := make([][]byte, 0, len(events))
	for _, ev := range events {
		b, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		encoded = append(encoded, b)
	}

	var rec InstanceRecord
	applyDerived(&rec, events)

	set := bson.M{}
	if rec.Status != "" {
		output, err := EncodeValue(rec.Output)
		if err != nil {
			return err
		}
		set["status"] = string(rec.Status)
		set["output"] = output
		set["detail"] = rec.Detail
	}

	update := bson.M{
		"$push": bson.M{"history": bson.M{"$each": encoded}},
		"$inc":  bson.M{"version": len(events)},
	}
	if len(set) > 0 {
		update["$set"] = set
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": instanceID, "version": expectedVersion},
		update,
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing instance from a stale version.
		count, err := s.coll.CountDocuments(ctx, bson.M{"_id": instanceID})
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrInstanceNotFound
		}
		return ErrHistoryConflict
	}
	return nil
}

func (s *MongoHistoryStore) Load(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	var doc mongoInstanceDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": instanceID},
		options.FindOne().SetProjection(bson.M{"history": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}

	events := make([]api.HistoryEvent, 0, len(doc.History))
	for _, raw := range doc.History {
		ev, err := DecodeEvent(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *MongoHistoryStore) GetInstance(ctx context.Context, instanceID string) (InstanceRecord, error) {
	var doc mongoInstanceDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": instanceID},
		options.FindOne().SetProjection(bson.M{"history": 0}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return InstanceRecord{}, ErrInstanceNotFound
	}
	if err != nil {
		return InstanceRecord{}, err
	}
	return docToRecord(doc)
}

func (s *MongoHistoryStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]InstanceRecord, error) {
	query := bson.M{}
	if filter.Workflow != "" {
		query["workflow"] = filter.Workflow
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	cursor, err := s.coll.Find(ctx, query, options.Find().SetProjection(bson.M{"history": 0}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []InstanceRecord
	for cursor.Next(ctx) {
		var doc mongoInstanceDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rec, err := docToRecord(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, cursor.Err()
}

func docToRecord(doc mongoInstanceDoc) (InstanceRecord, error) {
	input, err := DecodeValue(doc.Input)
	if err != nil {
		return InstanceRecord{}, err
	}
	output, err := DecodeValue(doc.Output)
	if err != nil {
		return InstanceRecord{}, err
	}
	return InstanceRecord{
		ID:        doc.ID,
		Workflow:  doc.Workflow,
		Status:    api.Status(doc.Status),
		Input:     input,
		Output:    output,
		Detail:    doc.Detail,
		CreatedAt: unixNano(doc.CreatedAt),
	}, nil
}
