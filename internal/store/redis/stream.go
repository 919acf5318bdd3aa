package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emperorhan/invoice-oracle/internal/domain/event"
)

const (
	DefaultStreamName = "invoice-oracle:transitions"
	defaultMaxLen     = 100_000

	fieldPayload = "payload"
	fieldOp      = "op"
	fieldRecord  = "record"
)

// Stream publishes committed transitions to a Redis stream so downstream
// consumers can follow invoice lifecycles without polling the record store.
type Stream struct {
	client *redis.Client
	name   string
	maxLen int64
}

func NewStream(ctx context.Context, url, name string) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if name == "" {
		name = DefaultStreamName
	}
	return &Stream{client: client, name: name, maxLen: defaultMaxLen}, nil
}

// Publish appends each transition as one stream entry.
func (s *Stream) Publish(ctx context.Context, transitions []event.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, tr := range transitions {
		values, err := streamValues(tr)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.name,
			MaxLen: s.maxLen,
			Approx: true,
			Values: values,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", s.name, err)
	}
	return nil
}

// Read returns up to count transitions after lastID, blocking for at most
// block. It returns the id of the last entry read, or lastID when none were.
func (s *Stream) Read(ctx context.Context, lastID string, count int64, block time.Duration) ([]event.Transition, string, error) {
	if lastID == "" {
		lastID = "0"
	}
	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.name, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if err == redis.Nil {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, fmt.Errorf("xread %s: %w", s.name, err)
	}

	var out []event.Transition
	for _, stream := range res {
		for _, msg := range stream.Messages {
			tr, err := parseEntry(msg.Values)
			if err != nil {
				return out, lastID, fmt.Errorf("entry %s: %w", msg.ID, err)
			}
			out = append(out, tr)
			lastID = msg.ID
		}
	}
	return out, lastID, nil
}

func (s *Stream) Close() error {
	return s.client.Close()
}

func (s *Stream) Client() *redis.Client {
	return s.client
}

func streamValues(tr event.Transition) (map[string]any, error) {
	payload, err := json.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("marshal transition: %w", err)
	}
	return map[string]any{
		fieldOp:      tr.Op,
		fieldRecord:  tr.Record.String(),
		fieldPayload: string(payload),
	}, nil
}

func parseEntry(values map[string]any) (event.Transition, error) {
	var tr event.Transition
	raw, ok := values[fieldPayload]
	if !ok {
		return tr, fmt.Errorf("missing %q field", fieldPayload)
	}
	var payload string
	switch v := raw.(type) {
	case string:
		payload = v
	case []byte:
		payload = string(v)
	default:
		return tr, fmt.Errorf("%q field has type %T", fieldPayload, raw)
	}
	if err := json.Unmarshal([]byte(payload), &tr); err != nil {
		return tr, fmt.Errorf("unmarshal transition: %w", err)
	}
	return tr, nil
}
