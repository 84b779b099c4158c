package file

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// AuditLog implements ports.AuditStore as one JSON Lines file per session.
type AuditLog struct {
	BasePath string
	mu       sync.Mutex
}

// NewAuditLog creates an audit log rooted at basePath.
// If basePath is empty, it defaults to ".llmfsm/audit".
func NewAuditLog(basePath string) *AuditLog {
	if basePath == "" {
		basePath = filepath.Join(".llmfsm", "audit")
	}
	return &AuditLog{BasePath: basePath}
}

// Append writes rec as a new line and syncs the file.
func (a *AuditLog) Append(ctx context.Context, sessionID string, rec domain.TurnRecord) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.MkdirAll(a.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure audit directory: %w", err)
	}
	f, err := os.OpenFile(a.path(sessionID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return f.Sync()
}

// List reads the session's records ordered by Seq.
func (a *AuditLog) List(ctx context.Context, sessionID string) ([]domain.TurnRecord, error) {
	if err := checkID(sessionID); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.TurnRecord{}, nil
		}
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	out := []domain.TurnRecord{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec domain.TurnRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode audit record: %w", err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}
	slices.SortStableFunc(out, func(x, y domain.TurnRecord) int { return cmp.Compare(x.Seq, y.Seq) })
	return out, nil
}

func (a *AuditLog) path(sessionID string) string {
	return filepath.Join(a.BasePath, sessionID+".jsonl")
}
