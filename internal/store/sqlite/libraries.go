package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/store"
)

// ResolveLibrary returns the library bound to name in contextID.
// Returns store.ErrNotFound if the name is not bound.
func (s *Store) ResolveLibrary(ctx context.Context, name, contextID string) (domain.LibraryID, error) {
	return resolveLibrary(ctx, s.db, name, contextID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func resolveLibrary(ctx context.Context, q queryRower, name, contextID string) (domain.LibraryID, error) {
	var id domain.LibraryID
	err := q.QueryRowContext(ctx,
		`SELECT library_id FROM names WHERE name = ? AND group_id = ?`, name, contextID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// libraryContext returns the context a library belongs to.
func libraryContext(ctx context.Context, q queryRower, id domain.LibraryID) (string, error) {
	var contextID string
	err := q.QueryRowContext(ctx, `SELECT group_id FROM libraries WHERE id = ?`, id).Scan(&contextID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound.WithMessage(fmt.Sprintf("library %d not found", id))
	}
	return contextID, err
}

// CreateLibrary creates a library in contextID and binds name to it.
// If the name is already bound, the existing library id is returned.
func (s *Store) CreateLibrary(ctx context.Context, name, contextID string) (domain.LibraryID, error) {
	if name == "" {
		return 0, store.ErrInvalidInput.WithMessage("library name cannot be empty")
	}

	var (
		id      domain.LibraryID
		created bool
	)
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		existing, err := resolveLibrary(ctx, tx, name, contextID)
		if err == nil {
			id = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO libraries (group_id) VALUES (?)`, contextID)
		if err != nil {
			return fmt.Errorf("insert library: %w", err)
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = domain.LibraryID(lastID)

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO names (name, library_id, group_id) VALUES (?, ?, ?)`,
			name, id, contextID); err != nil {
			return fmt.Errorf("insert name: %w", err)
		}
		created = true
		return nil
	})
	if isUniqueViolation(err) {
		// Another process bound the name first.
		return s.ResolveLibrary(ctx, name, contextID)
	}
	if err != nil {
		return 0, err
	}

	if created {
		s.logger.Debug("library created", "library_id", id, "name", name, "context", contextID)
		s.nameIndexer().NameBound(ctx, domain.NameBinding{Context: contextID, Name: name, LibraryID: id})
	}
	return id, nil
}

// BindName binds an additional name to a library. It returns false when the
// name is already bound to a different library, true when the binding exists
// afterwards. Returns store.ErrNotFound if the library does not exist and
// store.ErrInvalidInput if it belongs to another context.
func (s *Store) BindName(ctx context.Context, name string, id domain.LibraryID, contextID string) (bool, error) {
	if name == "" {
		return false, store.ErrInvalidInput.WithMessage("name cannot be empty")
	}

	var inserted, ok bool
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		libCtx, err := libraryContext(ctx, tx, id)
		if err != nil {
			return err
		}
		if libCtx != contextID {
			return store.ErrInvalidInput.WithMessage(
				fmt.Sprintf("library %d belongs to context %q", id, libCtx))
		}

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO names (name, library_id, group_id) VALUES (?, ?, ?)`,
			name, id, contextID)
		if err != nil {
			return fmt.Errorf("insert name: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			inserted, ok = true, true
			return nil
		}

		owner, err := resolveLibrary(ctx, tx, name, contextID)
		if err != nil {
			return err
		}
		ok = owner == id
		return nil
	})
	if err != nil {
		return false, err
	}

	if inserted {
		s.nameIndexer().NameBound(ctx, domain.NameBinding{Context: contextID, Name: name, LibraryID: id})
	}
	return ok, nil
}

// UnbindName removes a name binding and reports whether a row was removed.
// It does not protect a library's last name; callers check that first.
func (s *Store) UnbindName(ctx context.Context, name, contextID string) (bool, error) {
	var removed bool
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM names WHERE name = ? AND group_id = ?`, name, contextID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.nameIndexer().NameUnbound(ctx, contextID, name)
	}
	return removed, nil
}

// MergeLibraries moves every image and name of src into dst and deletes src,
// all in one transaction. Merging a library into itself is a no-op.
// Libraries of different contexts cannot be merged.
func (s *Store) MergeLibraries(ctx context.Context, src, dst domain.LibraryID) error {
	if src == dst {
		return nil
	}

	var (
		moved     []string
		contextID string
	)
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var err error
		moved, contextID, err = mergeLibrariesTx(ctx, tx, src, dst)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("libraries merged",
		"src", src,
		"dst", dst,
		"context", contextID,
		"names_moved", len(moved),
	)
	indexer := s.nameIndexer()
	for _, name := range moved {
		indexer.NameBound(ctx, domain.NameBinding{Context: contextID, Name: name, LibraryID: dst})
	}
	return nil
}

// mergeLibrariesTx performs the merge inside tx and returns the moved names.
func mergeLibrariesTx(ctx context.Context, tx *sql.Tx, src, dst domain.LibraryID) ([]string, string, error) {
	srcCtx, err := libraryContext(ctx, tx, src)
	if err != nil {
		return nil, "", err
	}
	dstCtx, err := libraryContext(ctx, tx, dst)
	if err != nil {
		return nil, "", err
	}
	if srcCtx != dstCtx {
		return nil, "", store.ErrInvalidInput.WithMessage(
			fmt.Sprintf("cannot merge library %d (%s) into %d (%s)", src, srcCtx, dst, dstCtx))
	}

	moved, err := listNames(ctx, tx, src)
	if err != nil {
		return nil, "", err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE images SET library_id = ? WHERE library_id = ?`, dst, src); err != nil {
		return nil, "", fmt.Errorf("move images: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE names SET library_id = ? WHERE library_id = ?`, dst, src); err != nil {
		return nil, "", fmt.Errorf("move names: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, src); err != nil {
		return nil, "", fmt.Errorf("delete library: %w", err)
	}
	return moved, srcCtx, nil
}

// ListNames returns the names bound to a library in insertion order.
func (s *Store) ListNames(ctx context.Context, id domain.LibraryID) ([]string, error) {
	return listNames(ctx, s.db, id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listNames(ctx context.Context, q querier, id domain.LibraryID) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM names WHERE library_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetLibrary returns a library with its names and image count.
// Returns store.ErrNotFound if the library does not exist.
func (s *Store) GetLibrary(ctx context.Context, id domain.LibraryID) (*domain.Library, error) {
	lib := &domain.Library{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT l.group_id, (SELECT COUNT(*) FROM images i WHERE i.library_id = l.id)
		FROM libraries l WHERE l.id = ?`, id).Scan(&lib.Context, &lib.ImageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	lib.Names, err = s.ListNames(ctx, id)
	if err != nil {
		return nil, err
	}
	return lib, nil
}

// ListLibraries returns every library of a context ordered by id.
func (s *Store) ListLibraries(ctx context.Context, contextID string) ([]*domain.Library, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, (SELECT COUNT(*) FROM images i WHERE i.library_id = l.id)
		FROM libraries l WHERE l.group_id = ? ORDER BY l.id`, contextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var libraries []*domain.Library
	byID := make(map[domain.LibraryID]*domain.Library)
	for rows.Next() {
		lib := &domain.Library{Context: contextID}
		if err := rows.Scan(&lib.ID, &lib.ImageCount); err != nil {
			return nil, err
		}
		libraries = append(libraries, lib)
		byID[lib.ID] = lib
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nameRows, err := s.db.QueryContext(ctx,
		`SELECT name, library_id FROM names WHERE group_id = ? ORDER BY rowid`, contextID)
	if err != nil {
		return nil, err
	}
	defer nameRows.Close()

	for nameRows.Next() {
		var (
			name string
			id   domain.LibraryID
		)
		if err := nameRows.Scan(&name, &id); err != nil {
			return nil, err
		}
		if lib, ok := byID[id]; ok {
			lib.Names = append(lib.Names, name)
		}
	}
	return libraries, nameRows.Err()
}

// ListContexts returns every context that owns at least one library.
func (s *Store) ListContexts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT group_id FROM libraries ORDER BY group_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contexts []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contexts = append(contexts, c)
	}
	return contexts, rows.Err()
}

// AllNames returns every name binding, used to build the name index.
func (s *Store) AllNames(ctx context.Context) ([]domain.NameBinding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, name, library_id FROM names ORDER BY group_id, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []domain.NameBinding
	for rows.Next() {
		var b domain.NameBinding
		if err := rows.Scan(&b.Context, &b.Name, &b.LibraryID); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}
