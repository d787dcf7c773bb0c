// Package storage archives analytics snapshots.
//
// Three backends share the Archive interface: S3 objects, DynamoDB items and
// JSON files on local disk. Keys sort chronologically in every backend, so
// Recent can return newest first without a secondary index.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/referral-tracker/internal/config"
	"github.com/ignite/referral-tracker/internal/domain"
)

// keyTimeFormat is fixed width so lexical order equals time order.
const keyTimeFormat = "20060102T150405.000000Z"

// Archive stores and retrieves analytics snapshots.
type Archive interface {
	// Save persists snap and returns the key it was stored under.
	Save(ctx context.Context, snap domain.StatsSnapshot) (string, error)
	// Recent returns up to limit snapshots, newest first.
	Recent(ctx context.Context, limit int) ([]domain.StatsSnapshot, error)
}

// New builds the archive selected by cfg.Backend. It returns a nil Archive
// when archiving is disabled.
func New(ctx context.Context, cfg config.SnapshotConfig) (Archive, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return nil, nil
	case "local":
		a, err := NewLocalArchive(cfg.LocalPath)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "s3":
		a, err := NewS3Archive(ctx, cfg.S3Bucket, cfg.Prefix, cfg.Region, cfg.Profile)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "dynamodb":
		a, err := NewDynamoArchive(ctx, cfg.DynamoDBTable, cfg.Region, cfg.Profile)
		if err != nil {
			return nil, err
		}
		a.Retention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
		return a, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}

// LocalArchive writes one JSON file per snapshot under a directory.
type LocalArchive struct {
	dir string
	mu  sync.Mutex
}

// NewLocalArchive creates the snapshot directory if needed.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if basePath == "" {
		basePath = "./data"
	}
	dir := filepath.Join(basePath, "analytics")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &LocalArchive{dir: dir}, nil
}

func (a *LocalArchive) Save(_ context.Context, snap domain.StatsSnapshot) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := snap.TakenAt.UTC().Format(keyTimeFormat) + ".json"
	file, err := os.Create(filepath.Join(a.dir, name))
	if err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return "analytics/" + name, nil
}

func (a *LocalArchive) Recent(_ context.Context, limit int) ([]domain.StatsSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	out := make([]domain.StatsSnapshot, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(a.dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading snapshot %s: %w", name, err)
		}
		var snap domain.StatsSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decoding snapshot %s: %w", name, err)
		}
		out = append(out, snap)
	}
	return out, nil
}
