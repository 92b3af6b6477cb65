package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/rewind/pkg/api"
)

// RedisHistoryStore is a HistoryStore backed by Redis. It uses a simple key
// structure:
//
//	<prefix>inst:<id>             => gob-encoded redisInstancePayload
//	<prefix>hist:<id>             => LIST of gob-encoded history events
//	<prefix>idx:all               => SET of all instance IDs
//	<prefix>idx:wf:<workflow>     => SET of instance IDs per workflow
//	<prefix>idx:status:<status>   => SET of instance IDs per derived status
//
// Append atomicity relies on WATCH over the history list: if another writer
// appends between load and commit, the transaction aborts and the append is
// reported as ErrHistoryConflict.
type RedisHistoryStore struct {
	client *redis.Client
	prefix string
}

var _ HistoryStore = (*RedisHistoryStore)(nil)

type redisInstancePayload struct {
	ID        string
	Workflow  string
	Status    string
	Input     []byte
	Output    []byte
	Detail    string
	CreatedAt int64
}

// NewRedisHistoryStore creates a RedisHistoryStore.
// prefix is optional but recommended (e.g. "rewind:").
func NewRedisHistoryStore(client *redis.Client, prefix string) *RedisHistoryStore {
	if prefix == "" {
		prefix = "rewind:"
	}
	return &RedisHistoryStore{client: client, prefix: prefix}
}

func (s *RedisHistoryStore) keyInstance(id string) string { return s.prefix + "inst:" + id }
func (s *RedisHistoryStore) keyHistory(id string) string  { return s.prefix + "hist:" + id }
func (s *RedisHistoryStore) keyAll() string               { return s.prefix + "idx:all" }
func (s *RedisHistoryStore) keyWorkflow(wf string) string { return s.prefix + "idx:wf:" + wf }
func (s *RedisHistoryStore) keyStatus(st api.Status) string {
	return s.prefix + "idx:status:" + string(st)
}

func encodeRedisInstance(rec InstanceRecord) ([]byte, error) {
	input, err := EncodeValue(rec.Input)
	if err != nil {
		return nil, err
	}
	output, err := EncodeValue(rec.Output)
	if err != nil {
		return nil, err
	}
	payload := redisInstancePayload{
		ID:        rec.ID,
		Workflow:  rec.Workflow,
		Status:    string(rec.Status),
		Input:     input,
		Output:    output,
		Detail:    rec.Detail,
		CreatedAt: rec.CreatedAt.UnixNano(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisInstance(data []byte) (InstanceRecord, error) {
	var payload redisInstancePayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return InstanceRecord{}, err
	}
	input, err := DecodeValue(payload.Input)
	if err != nil {
		return InstanceRecord{}, err
	}
	output, err := DecodeValue(payload.Output)
	if err != nil {
		return InstanceRecord{}, err
	}
	return InstanceRecord{
		ID:        payload.ID,
		Workflow:  payload.Workflow,
		Status:    api.Status(payload.Status),
		Input:     input,
		Output:    output,
		Detail:    payload.Detail,
		CreatedAt: unixNano(payload.CreatedAt),
	}, nil
}

func (s *RedisHistoryStore) CreateInstance(ctx context.Context, rec InstanceRecord) error {
	if rec.Status == "" {
		rec.Status = api.StatusRunning
	}
	data, err := encodeRedisInstance(rec)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.keyInstance(rec.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrInstanceExists
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, s.keyAll(), rec.ID)
	pipe.SAdd(ctx, s.keyWorkflow(rec.Workflow), rec.ID)
	pipe.SAdd(ctx, s.keyStatus(rec.Status), rec.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisHistoryStore) Append(ctx context.Context, instanceID string, expectedVersion int, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	histKey := s.keyHistory(instanceID)
	instKey := s.keyInstance(instanceID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, instKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrInstanceNotFound
		}
		if err != nil {
			return err
		}
		rec, err := decodeRedisInstance(data)
		if err != nil {
			return err
		}

		length, err := tx.LLen(ctx, histKey).Result()
		if err != nil {
			return err
		}
		if int(length) != expectedVersion {
			return ErrHistoryConflict
		}

		encoded := make([]any, 0, len(events))
		for _, ev := range events {
			b, err := EncodeEvent(ev)
			if err != nil {
				return err
			}
			encoded = append(encoded, b)
		}

		prevStatus := rec.Status
		applyDerived(&rec, events)
		instData, err := encodeRedisInstance(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, histKey, encoded...)
			pipe.Set(ctx, instKey, instData, 0)
			if rec.Status != prevStatus {
				pipe.SRem(ctx, s.keyStatus(prevStatus), instanceID)
				pipe.SAdd(ctx, s.keyStatus(rec.Status), instanceID)
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, histKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrHistoryConflict
	}
	return err
}

func (s *RedisHistoryStore) Load(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	exists, err := s.client.Exists(ctx, s.keyInstance(instanceID)).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrInstanceNotFound
	}

	raw, err := s.client.LRange(ctx, s.keyHistory(instanceID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]api.HistoryEvent, 0, len(raw))
	for _, item := range raw {
		ev, err := DecodeEvent([]byte(item))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *RedisHistoryStore) GetInstance(ctx context.Context, instanceID string) (InstanceRecord, error) {
	data, err := s.client.Get(ctx, s.keyInstance(instanceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return InstanceRecord{}, ErrInstanceNotFound
	}
	if err != nil {
		return InstanceRecord{}, err
	}
	return decodeRedisInstance(data)
}

func (s *RedisHistoryStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]InstanceRecord, error) {
	var ids []string
	var err error

	switch {
	case filter.Workflow != "" && filter.Status != "":
		ids, err = s.client.SInter(ctx, s.keyWorkflow(filter.Workflow), s.keyStatus(filter.Status)).Result()
	case filter.Workflow != "":
		ids, err = s.client.SMembers(ctx, s.keyWorkflow(filter.Workflow)).Result()
	case filter.Status != "":
		ids, err = s.client.SMembers(ctx, s.keyStatus(filter.Status)).Result()
	default:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}
	if err != nil {
		return nil, err
	}

	records := make([]InstanceRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetInstance(ctx, id)
		if errors.Is(err, ErrInstanceNotFound) {
			// Index entry outlived the instance key; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
