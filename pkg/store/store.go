// Package store persists completed research runs keyed by topic and replays
// them into new sessions without re-running the pipeline.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/chronolab/chrono/pkg/types"
)

// Store is the persistence gateway for completed runs.
type Store interface {
	// GetByTopic returns the stored run for a topic, or (nil, nil) when
	// none exists.
	GetByTopic(ctx context.Context, topic string) (*types.StoredRun, error)
	// Upsert replaces any stored run for the same topic atomically.
	Upsert(ctx context.Context, run *types.StoredRun) error
}

// TopicKey derives the stable document key for a topic. Keys are digests so
// arbitrary topic strings stay valid document ids.
func TopicKey(topic string) string {
	normalized := strings.ToLower(strings.TrimSpace(topic))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
