package store

import (
	"database/sql"
	"time"
)

// GetImportedFileHash returns the sha256 recorded for a question bank file,
// or "" if it was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT sha256 FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the sha256 of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, sha256, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET sha256 = ?, imported_at = ?`,
		path, hash, now, hash, now,
	)
	return err
}
