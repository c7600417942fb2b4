package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Access records one read of dashboard data.
type Access struct {
	CorrelationID string `json:"cid"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Query         string `json:"query,omitempty"`
	RemoteAddr    string `json:"remote_addr,omitempty"`
	Client        string `json:"client,omitempty"`
	Status        int    `json:"status"`
	DurationMS    int64  `json:"duration_ms"`
}

// LogEntry represents a single audit log entry
type LogEntry struct {
	Sequence     uint64 `json:"sequence"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// Sink persists entries in chain order.
type Sink interface {
	Write(ctx context.Context, entry *LogEntry) error
}

// ChainLogger hash-chains access records so that edits, deletions and
// reordering are detectable with VerifyChain.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
	sequence     uint64
	sink         Sink
	now          func() time.Time
}

// NewChainLogger starts a chain at the zero hash. sink may be nil.
func NewChainLogger(sink Sink) *ChainLogger {
	return &ChainLogger{
		previousHash: strings.Repeat("0", 64),
		sink:         sink,
		now:          time.Now,
	}
}

// Record appends an access record. The entry is chained even when the sink
// write fails; the error is returned so the caller can log it.
func (c *ChainLogger) Record(ctx context.Context, access Access) (*LogEntry, error) {
	payload, err := json.Marshal(access)
	if err != nil {
		return nil, fmt.Errorf("audit: encode access: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sequence++
	entry := &LogEntry{
		Sequence:     c.sequence,
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
		PreviousHash: c.previousHash,
		Payload:      string(payload),
	}
	entry.Hash = entryHash(entry.PreviousHash, entry)
	c.previousHash = entry.Hash

	if c.sink != nil {
		if err := c.sink.Write(ctx, entry); err != nil {
			return entry, fmt.Errorf("audit: write entry %d: %w", entry.Sequence, err)
		}
	}
	return entry, nil
}

func entryHash(previous string, e *LogEntry) string {
	hashInput := fmt.Sprintf("%s|%d|%s|%s", previous, e.Sequence, e.Timestamp, e.Payload)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// VerifyChain checks if a slice of entries forms a valid hash chain.
func VerifyChain(entries []*LogEntry) bool {
	for i, entry := range entries {
		prevHash := entry.PreviousHash
		if i > 0 {
			prevHash = entries[i-1].Hash
			if entry.PreviousHash != prevHash || entry.Sequence != entries[i-1].Sequence+1 {
				return false
			}
		}
		if entryHash(prevHash, entry) != entry.Hash {
			return false
		}
	}
	return true
}
