package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/roach88/atplug/internal/scanner"
)

// FileDigest returns the digest recorded for path. The second result is
// false if path is not indexed.
func (s *Store) FileDigest(ctx context.Context, path string) (digest.Digest, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM files WHERE path = ?`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query digest of %s: %w", path, err)
	}
	d, err := digest.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("stored digest of %s: %w", path, err)
	}
	return d, true, nil
}

// Files returns every indexed file ordered by path.
func (s *Store) Files(ctx context.Context) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, digest, package FROM files
		ORDER BY path COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	files := []File{}
	for rows.Next() {
		var (
			f   File
			raw string
		)
		if err := rows.Scan(&f.Path, &raw, &f.Package); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		f.Digest = digest.Digest(raw)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// Plugs returns every indexed plug ordered by implementation.
func (s *Store) Plugs(ctx context.Context) ([]scanner.Plug, error) {
	return s.queryPlugs(ctx, `
		SELECT implementation, socket, abstract, path, line FROM plugs
		ORDER BY implementation COLLATE BINARY ASC
	`)
}

// PlugsForSocket returns the indexed plugs of socket ordered by
// implementation.
func (s *Store) PlugsForSocket(ctx context.Context, socket string) ([]scanner.Plug, error) {
	return s.queryPlugs(ctx, `
		SELECT implementation, socket, abstract, path, line FROM plugs
		WHERE socket = ?
		ORDER BY implementation COLLATE BINARY ASC
	`, socket)
}

func (s *Store) queryPlugs(ctx context.Context, query string, args ...any) ([]scanner.Plug, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query plugs: %w", err)
	}
	defer rows.Close()

	plugs := []scanner.Plug{}
	for rows.Next() {
		var p scanner.Plug
		if err := rows.Scan(&p.Implementation, &p.Socket, &p.Abstract, &p.File, &p.Line); err != nil {
			return nil, fmt.Errorf("scan plug row: %w", err)
		}
		plugs = append(plugs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plugs: %w", err)
	}
	return plugs, nil
}
