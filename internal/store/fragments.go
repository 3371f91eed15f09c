package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// ReplaceFragments deletes all existing Fragments of fileID and inserts the
// given set, each paired with its lexical shadow row, all inside a single
// transaction — the write is atomic with respect to any concurrent reader.
func (s *SQLiteStore) ReplaceFragments(ctx context.Context, fileID int64, fragments []Fragment) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return replaceFragmentsTx(ctx, tx, fileID, fragments)
	})
}

// replaceFragmentsTx is the transactional core, shared with
// ReplaceFileWithFragments so the owning File's upsert and the fragment
// replacement run in one transaction without nesting.
func replaceFragmentsTx(ctx context.Context, tx *sql.Tx, fileID int64, fragments []Fragment) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM fragments WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("deleting fragments for file %d: %w", fileID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fragments (file_id, position, text, original, char_start, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing fragment insert: %w", err)
	}
	defer stmt.Close()

	for _, frag := range fragments {
		var blob []byte
		if len(frag.Embedding) > 0 {
			blob = float32ToBytes(frag.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, fileID, frag.Position, frag.Text, frag.Original, frag.CharStart, blob); err != nil {
			return fmt.Errorf("inserting fragment %d of file %d: %w", frag.Position, fileID, err)
		}
	}
	return nil
}

// ReplaceFileWithFragments upserts the File row for path and replaces all of
// its Fragments in a single transaction, so a concurrent reader never
// observes a File whose fragment set doesn't match its new fingerprint.
func (s *SQLiteStore) ReplaceFileWithFragments(ctx context.Context, path, fingerprint string, fragments []Fragment) (*File, error) {
	var file *File

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO files (path, fingerprint) VALUES (?, ?)
			 ON CONFLICT(path) DO UPDATE SET fingerprint = excluded.fingerprint, updated_at = CURRENT_TIMESTAMP`,
			path, fingerprint)
		if err != nil {
			return fmt.Errorf("upserting file %q: %w", path, err)
		}

		row := tx.QueryRowContext(ctx,
			`SELECT id, path, fingerprint, imported_at, updated_at FROM files WHERE path = ?`, path)
		file = &File{}
		if err := row.Scan(&file.ID, &file.Path, &file.Fingerprint, &file.ImportedAt, &file.UpdatedAt); err != nil {
			return fmt.Errorf("reading back file %q: %w", path, err)
		}

		return replaceFragmentsTx(ctx, tx, file.ID, fragments)
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// DeleteFragmentsByFile removes every Fragment owned by fileID.
func (s *SQLiteStore) DeleteFragmentsByFile(ctx context.Context, fileID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM fragments WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("deleting fragments for file %d: %w", fileID, err)
	}
	return nil
}

// GetFragment returns a Fragment by id along with its owning File's relative
// path, or (nil, "", nil) if the identifier doesn't resolve (a hydration
// miss, per spec.md §4.10 — never an error).
func (s *SQLiteStore) GetFragment(ctx context.Context, id int64) (*Fragment, string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT f.id, f.file_id, f.position, f.text, f.original, f.char_start, f.embedding, files.path
		 FROM fragments f JOIN files ON files.id = f.file_id
		 WHERE f.id = ?`, id)

	frag := &Fragment{}
	var blob []byte
	var path string
	if err := row.Scan(&frag.ID, &frag.FileID, &frag.Position, &frag.Text, &frag.Original, &frag.CharStart, &blob, &path); err != nil {
		if err == sql.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("getting fragment %d: %w", id, err)
	}
	if len(blob) > 0 {
		frag.Embedding = bytesToFloat32(blob)
	}
	return frag, path, nil
}

// ListFragmentsWithEmbeddings returns every Fragment that has a non-null
// embedding, for the Vector Ranker's exact scan.
func (s *SQLiteStore) ListFragmentsWithEmbeddings(ctx context.Context) ([]*Fragment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, position, text, original, char_start, embedding
		 FROM fragments WHERE embedding IS NOT NULL ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing embedded fragments: %w", err)
	}
	defer rows.Close()

	var frags []*Fragment
	for rows.Next() {
		f := &Fragment{}
		var blob []byte
		if err := rows.Scan(&f.ID, &f.FileID, &f.Position, &f.Text, &f.Original, &f.CharStart, &blob); err != nil {
			return nil, fmt.Errorf("scanning fragment row: %w", err)
		}
		f.Embedding = bytesToFloat32(blob)
		frags = append(frags, f)
	}
	return frags, rows.Err()
}

// SearchLexical runs a BM25 match query against the fragments_fts shadow
// table. Never errors on a query that matches nothing.
func (s *SQLiteStore) SearchLexical(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT rowid, bm25(fragments_fts) AS score
		 FROM fragments_fts WHERE fragments_fts MATCH ?
		 ORDER BY score ASC LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching lexical index: %w", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.FragmentID, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning lexical hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// CountFragments returns the total number of Fragment rows in the store.
func (s *SQLiteStore) CountFragments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting fragments: %w", err)
	}
	return n, nil
}

// CountLexicalShadowRows returns the number of rows in the fragments_fts
// shadow table, for asserting parity with CountFragments.
func (s *SQLiteStore) CountLexicalShadowRows(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments_fts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting lexical shadow rows: %w", err)
	}
	return n, nil
}

// ListFragmentsByFile returns every Fragment owned by fileID, ordered by
// position ascending, regardless of embedding state.
func (s *SQLiteStore) ListFragmentsByFile(ctx context.Context, fileID int64) ([]*Fragment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, position, text, original, char_start, embedding
		 FROM fragments WHERE file_id = ? ORDER BY position ASC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing fragments for file %d: %w", fileID, err)
	}
	defer rows.Close()

	var frags []*Fragment
	for rows.Next() {
		f := &Fragment{}
		var blob []byte
		if err := rows.Scan(&f.ID, &f.FileID, &f.Position, &f.Text, &f.Original, &f.CharStart, &blob); err != nil {
			return nil, fmt.Errorf("scanning fragment row: %w", err)
		}
		if len(blob) > 0 {
			f.Embedding = bytesToFloat32(blob)
		}
		frags = append(frags, f)
	}
	return frags, rows.Err()
}

// float32ToBytes packs a float32 slice as little-endian IEEE-754 bytes.
func float32ToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloat32 reconstructs a float32 slice from little-endian bytes.
func bytesToFloat32(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
