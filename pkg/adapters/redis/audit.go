package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// AuditLog implements ports.AuditStore with one sorted set per session,
// scored by the record's Seq.
type AuditLog struct {
	client backend.UniversalClient
	prefix string
}

// NewAuditLog creates an audit log. An empty prefix defaults to "llmfsm:audit:".
func NewAuditLog(client backend.UniversalClient, prefix string) *AuditLog {
	if prefix == "" {
		prefix = "llmfsm:audit:"
	}
	return &AuditLog{client: client, prefix: prefix}
}

// Append adds rec to the session's trail.
func (a *AuditLog) Append(ctx context.Context, sessionID string, rec domain.TurnRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	err = a.client.ZAdd(ctx, a.prefix+sessionID, backend.Z{
		Score:  float64(rec.Seq),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

// List returns the session's records ordered by Seq.
func (a *AuditLog) List(ctx context.Context, sessionID string) ([]domain.TurnRecord, error) {
	members, err := a.client.ZRange(ctx, a.prefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	out := make([]domain.TurnRecord, 0, len(members))
	for _, m := range members {
		var rec domain.TurnRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
