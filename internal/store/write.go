package store

import (
	"context"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/roach88/atplug/internal/scanner"
)

// File is one indexed source file.
type File struct {
	Path    string
	Digest  digest.Digest
	Package string
}

// ReplaceFile records f and replaces every plug previously indexed for its
// path with plugs, in one transaction.
//
// An implementation already indexed under another path moves to f.Path.
func (s *Store) ReplaceFile(ctx context.Context, f File, plugs []scanner.Plug) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace file %s: %w", f.Path, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (path, digest, package) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET digest = excluded.digest, package = excluded.package
	`, f.Path, f.Digest.String(), f.Package)
	if err != nil {
		return fmt.Errorf("replace file %s: %w", f.Path, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM plugs WHERE path = ?`, f.Path); err != nil {
		return fmt.Errorf("replace file %s: clear plugs: %w", f.Path, err)
	}

	for _, p := range plugs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO plugs (path, implementation, socket, abstract, line)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(implementation) DO UPDATE SET
				path = excluded.path,
				socket = excluded.socket,
				abstract = excluded.abstract,
				line = excluded.line
		`, f.Path, p.Implementation, p.Socket, p.Abstract, p.Line)
		if err != nil {
			return fmt.Errorf("replace file %s: insert plug %s: %w", f.Path, p.Implementation, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("replace file %s: commit: %w", f.Path, err)
	}
	return nil
}

// RemoveFile forgets path and its plugs. Removing an unknown path is a no-op.
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("remove file %s: %w", path, err)
	}
	return nil
}
