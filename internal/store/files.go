package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertFile inserts a new File row, or updates the fingerprint and
// updated_at of an existing one for the same path.
func (s *SQLiteStore) UpsertFile(ctx context.Context, path, fingerprint string) (*File, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (path, fingerprint) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET fingerprint = excluded.fingerprint, updated_at = CURRENT_TIMESTAMP`,
		path, fingerprint,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting file %q: %w", path, err)
	}
	return s.GetFileByPath(ctx, path)
}

// GetFileByPath returns the File row for path, or (nil, nil) if absent.
func (s *SQLiteStore) GetFileByPath(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, fingerprint, imported_at, updated_at FROM files WHERE path = ?`, path)
	f := &File{}
	if err := row.Scan(&f.ID, &f.Path, &f.Fingerprint, &f.ImportedAt, &f.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting file %q: %w", path, err)
	}
	return f, nil
}

// ListFiles returns every File row.
func (s *SQLiteStore) ListFiles(ctx context.Context) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, fingerprint, imported_at, updated_at FROM files`)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Path, &f.Fingerprint, &f.ImportedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning file row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateFileFingerprint updates only the fingerprint and updated_at columns.
func (s *SQLiteStore) UpdateFileFingerprint(ctx context.Context, id int64, fingerprint string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET fingerprint = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, fingerprint, id)
	if err != nil {
		return fmt.Errorf("updating fingerprint for file %d: %w", id, err)
	}
	return nil
}

// DeleteFile removes a File row; its Fragments cascade via the foreign key.
func (s *SQLiteStore) DeleteFile(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting file %d: %w", id, err)
	}
	return nil
}
