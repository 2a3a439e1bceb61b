package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// BuildCacheEntry is one persisted build result
type BuildCacheEntry struct {
	Identifier string
	Kind       string
	// Fingerprints maps every file the build read to its content hash
	Fingerprints map[string]string
	// Payload is the encoded build result, uncompressed
	Payload   []byte
	UpdatedAt time.Time
}

// CacheStats summarizes the build cache table
type CacheStats struct {
	Entries         int   `json:"entries"`
	RawBytes        int64 `json:"rawBytes"`
	CompressedBytes int64 `json:"compressedBytes"`
}

// Cache provides the build cache operations
type Cache struct {
	db *DB
}

// NewCache creates a new cache instance
func NewCache(db *DB) *Cache {
	return &Cache{db: db}
}

// Get retrieves the entry for identifier
func (c *Cache) Get(identifier string) (*BuildCacheEntry, bool, error) {
	var kind, fingerprintsJSON, updatedAt string
	var payload []byte

	err := c.db.QueryRow(`
		SELECT kind, fingerprints, payload, updated_at
		FROM build_cache
		WHERE identifier = ?
	`, identifier).Scan(&kind, &fingerprintsJSON, &payload, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("build cache lookup failed: %w", err)
	}

	raw, err := c.db.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt build cache payload for %s: %w", identifier, err)
	}

	entry := &BuildCacheEntry{
		Identifier: identifier,
		Kind:       kind,
		Payload:    raw,
	}
	if err := json.Unmarshal([]byte(fingerprintsJSON), &entry.Fingerprints); err != nil {
		return nil, false, fmt.Errorf("invalid fingerprints for %s: %w", identifier, err)
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, false, fmt.Errorf("invalid updated_at format: %w", err)
	}
	return entry, true, nil
}

// Set stores entry, replacing any previous entry for the same identifier
func (c *Cache) Set(entry *BuildCacheEntry) error {
	fingerprints, err := json.Marshal(entry.Fingerprints)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprints: %w", err)
	}
	compressed := c.db.encoder.EncodeAll(entry.Payload, nil)

	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO build_cache (identifier, kind, fingerprints, payload, raw_size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Identifier, entry.Kind, string(fingerprints), compressed, len(entry.Payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set build cache: %w", err)
	}
	return nil
}

// Delete removes the entry for identifier
func (c *Cache) Delete(identifier string) error {
	if _, err := c.db.Exec("DELETE FROM build_cache WHERE identifier = ?", identifier); err != nil {
		return fmt.Errorf("failed to delete build cache entry: %w", err)
	}
	return nil
}

// Prune removes entries not updated since before and returns how many were removed
func (c *Cache) Prune(before time.Time) (int64, error) {
	res, err := c.db.Exec("DELETE FROM build_cache WHERE updated_at < ?", before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune build cache: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry
func (c *Cache) Clear() error {
	return c.db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM build_cache")
		return err
	})
}

// Stats returns entry count and sizes
func (c *Cache) Stats() (CacheStats, error) {
	var s CacheStats
	err := c.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(raw_size), 0), COALESCE(SUM(LENGTH(payload)), 0)
		FROM build_cache
	`).Scan(&s.Entries, &s.RawBytes, &s.CompressedBytes)
	if err != nil {
		return CacheStats{}, fmt.Errorf("failed to read build cache stats: %w", err)
	}
	return s, nil
}
