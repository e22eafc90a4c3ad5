package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/geomind-labs/geomind/internal/model"
)

// Cache stores finished predictions keyed by image content, so repeated
// runs over the same image skip the model calls entirely.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

// Open opens the SQLite cache at the given path and configures WAL mode.
// A non-positive TTL means entries never expire.
func Open(path string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	return &Cache{db: db, ttl: ttl}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS predictions (
	image_hash TEXT PRIMARY KEY,
	prediction TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_predictions_expires_at ON predictions(expires_at);
`

// Migrate creates the cache schema.
func (c *Cache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "cache: migrate")
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Key returns the SHA-256 hex of the image bytes.
func Key(image []byte) string {
	h := sha256.Sum256(image)
	return fmt.Sprintf("%x", h)
}

// Get returns the cached prediction for the key, or nil on a miss.
// Expired entries count as misses.
func (c *Cache) Get(ctx context.Context, key string) (*model.Prediction, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT prediction FROM predictions
		 WHERE image_hash = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, time.Now().UTC(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: get")
	}

	var pred model.Prediction
	if err := json.Unmarshal([]byte(raw), &pred); err != nil {
		return nil, eris.Wrap(err, "cache: unmarshal prediction")
	}

	zap.L().Debug("prediction cache hit", zap.String("key", key[:12]))
	return &pred, nil
}

// Put stores a prediction under the key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, pred *model.Prediction) error {
	raw, err := json.Marshal(pred)
	if err != nil {
		return eris.Wrap(err, "cache: marshal prediction")
	}

	now := time.Now().UTC()
	var expires any
	if c.ttl > 0 {
		expires = now.Add(c.ttl)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO predictions (image_hash, prediction, cached_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (image_hash) DO UPDATE SET
			prediction = excluded.prediction,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at`,
		key, string(raw), now, expires,
	)
	return eris.Wrap(err, "cache: put")
}

// Prune deletes expired entries and returns how many were removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM predictions WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "cache: prune")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "cache: rows affected")
	}
	return n, nil
}
