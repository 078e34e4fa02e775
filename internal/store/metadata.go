package store

import (
	"context"
	"database/sql"
)

const importHashPrefix = "import_hash:"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	return s.setMetadata(ctx, s.db, key, value)
}

func (s *Store) setMetadata(ctx context.Context, q dbtx, key, value string) error {
	_, err := s.execOn(ctx, q,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	return s.getMetadata(ctx, s.db, key)
}

func (s *Store) getMetadata(ctx context.Context, q dbtx, key string) (string, error) {
	var value string
	err := s.queryRowOn(ctx, q, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the content hash recorded for an imported
// quiz file, or "" if it was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	return s.GetMetadata(ctx, importHashPrefix+path)
}

// SetImportedFileHash records the content hash of an imported quiz file.
func (s *Store) SetImportedFileHash(ctx context.Context, path, hash string) error {
	return s.SetMetadata(ctx, importHashPrefix+path, hash)
}
