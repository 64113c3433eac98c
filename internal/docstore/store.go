// Package docstore reads raw record collections out of a document database
// and flattens them into a rectangular dataset.
package docstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/modelgate/internal/dataset"
)

// Store yields a rectangular dataset for a named collection.
type Store interface {
	ExportCollection(ctx context.Context, collection string) (*dataset.Dataset, error)
	Close(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of "mongo", "postgres", "memory".
	Backend  string         `yaml:"backend"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// New constructs the configured store. The returned connection is meant to be
// created once and passed to every collaborator that needs it.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "mongo", "mongodb":
		return NewMongoStore(ctx, &cfg.Mongo)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, &cfg.Postgres)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown document store backend %q", cfg.Backend)
	}
}

// Field is one key/value pair of a document, in stored order.
type Field struct {
	Key   string
	Value any
}

// Document is an ordered list of fields.
type Document []Field

// idField is the store-assigned identifier, never a feature.
const idField = "_id"

// Flatten converts documents into a dataset. Columns follow first-seen key
// order across all documents; a key missing from a document becomes an empty
// cell.
func Flatten(docs []Document) (*dataset.Dataset, error) {
	var columns []string
	index := make(map[string]int)
	for _, doc := range docs {
		for _, f := range doc {
			if f.Key == idField {
				continue
			}
			if _, ok := index[f.Key]; !ok {
				index[f.Key] = len(columns)
				columns = append(columns, f.Key)
			}
		}
	}

	rows := make([][]string, len(docs))
	for i, doc := range docs {
		row := make([]string, len(columns))
		for _, f := range doc {
			if f.Key == idField {
				continue
			}
			row[index[f.Key]] = formatValue(f.Value)
		}
		rows[i] = row
	}
	return dataset.New(columns, rows)
}

func formatValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		if strings.EqualFold(typed, "na") {
			return ""
		}
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

// MemoryStore serves collections from memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document

	// Err, when set, is returned by every export.
	Err error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Document)}
}

// Insert appends documents to a collection.
func (s *MemoryStore) Insert(collection string, docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], docs...)
}

// ExportCollection flattens the stored documents.
func (s *MemoryStore) ExportCollection(ctx context.Context, collection string) (*dataset.Dataset, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	docs := s.collections[collection]
	s.mu.RUnlock()
	return Flatten(docs)
}

// Close releases resources.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
