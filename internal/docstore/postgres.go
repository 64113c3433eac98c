package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/haasonsaas/modelgate/internal/dataset"
)

// PostgresConfig configures a Postgres-backed document store where each
// document is a JSONB row tagged with its collection name.
type PostgresConfig struct {
	DSN            string        `yaml:"dsn"`
	Table          string        `yaml:"table"`
	MaxOpenConns   int           `yaml:"max_open_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// PostgresStore exports JSONB documents from a table shaped like
//
//	CREATE TABLE documents (id BIGSERIAL PRIMARY KEY, collection TEXT NOT NULL, body JSONB NOT NULL);
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore opens and pings the database.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil || strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgresStoreFromDB(db, cfg.Table), nil
}

// NewPostgresStoreFromDB wraps an existing connection.
func NewPostgresStoreFromDB(db *sql.DB, table string) *PostgresStore {
	if strings.TrimSpace(table) == "" {
		table = "documents"
	}
	return &PostgresStore{db: db, table: table}
}

// ExportCollection reads every document of the collection in insertion order.
func (s *PostgresStore) ExportCollection(ctx context.Context, collection string) (*dataset.Dataset, error) {
	query := fmt.Sprintf("SELECT body FROM %s WHERE collection = $1 ORDER BY id", pq.QuoteIdentifier(s.table))
	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decodeOrdered(body)
		if err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", collection, err)
	}
	return Flatten(docs)
}

// Close closes the database.
func (s *PostgresStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// decodeOrdered decodes a flat JSON object keeping key order. Nested values
// are kept as their decoded Go form.
func decodeOrdered(body []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("document must be a JSON object")
	}

	var doc Document
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if num, ok := value.(json.Number); ok {
			value = num.String()
		}
		doc = append(doc, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return doc, nil
}
