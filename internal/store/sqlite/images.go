package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/store"
)

// imageColumns must match the scan order in scanImage.
const imageColumns = `id, library_id, data, phash`

func scanImage(scanner interface{ Scan(dest ...any) error }) (*domain.Image, error) {
	var img domain.Image
	if err := scanner.Scan(&img.ID, &img.LibraryID, &img.Data, &img.Hash); err != nil {
		return nil, err
	}
	return &img, nil
}

type storedHash struct {
	id   int64
	hash string
}

func listHashes(ctx context.Context, q querier, id domain.LibraryID) ([]storedHash, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, phash FROM images WHERE library_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []storedHash
	for rows.Next() {
		var h storedHash
		if err := rows.Scan(&h.id, &h.hash); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func insertImage(ctx context.Context, tx *sql.Tx, id domain.LibraryID, data []byte, hash string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO images (library_id, data, phash) VALUES (?, ?, ?)`, id, data, hash)
	if isForeignKeyViolation(err) {
		return 0, store.ErrNotFound.WithMessage(fmt.Sprintf("library %d not found", id))
	}
	if err != nil {
		return 0, fmt.Errorf("insert image: %w", err)
	}
	return res.LastInsertId()
}

// AddImage stores an image in a library without any duplicate check.
func (s *Store) AddImage(ctx context.Context, id domain.LibraryID, data []byte, hash string) (int64, error) {
	if len(data) == 0 {
		return 0, store.ErrInvalidInput.WithMessage("image data cannot be empty")
	}

	var imageID int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var err error
		imageID, err = insertImage(ctx, tx, id, data, hash)
		return err
	})
	return imageID, err
}

// AddImageIfUnique stores an image unless the library already holds one whose
// hash cmp considers the same. On a duplicate it returns the existing image and
// stores nothing. Check and insert share one transaction.
func (s *Store) AddImageIfUnique(ctx context.Context, id domain.LibraryID, data []byte, hash string, cmp store.HashComparator) (*domain.Image, int64, error) {
	if len(data) == 0 {
		return nil, 0, store.ErrInvalidInput.WithMessage("image data cannot be empty")
	}

	var (
		conflict *domain.Image
		imageID  int64
	)
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		hashes, err := listHashes(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, h := range hashes {
			if cmp.SameString(hash, h.hash) {
				row := tx.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, h.id)
				conflict, err = scanImage(row)
				return err
			}
		}
		imageID, err = insertImage(ctx, tx, id, data, hash)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return conflict, imageID, nil
}

// ListImages returns every image of a library, payload included.
func (s *Store) ListImages(ctx context.Context, id domain.LibraryID) ([]*domain.Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE library_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*domain.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// ListImageRefs returns image metadata without payloads.
func (s *Store) ListImageRefs(ctx context.Context, id domain.LibraryID) ([]domain.ImageRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, library_id, phash, length(data) FROM images WHERE library_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []domain.ImageRef
	for rows.Next() {
		var r domain.ImageRef
		if err := rows.Scan(&r.ID, &r.LibraryID, &r.Hash, &r.Size); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// GetImage returns one image by id.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetImage(ctx context.Context, imageID int64) (*domain.Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, imageID)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return img, err
}

// RandomImage picks an image of the library uniformly at random.
// Returns nil without error when the library has no images.
func (s *Store) RandomImage(ctx context.Context, id domain.LibraryID) (*domain.Image, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE library_id = ? ORDER BY RANDOM() LIMIT 1`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return img, err
}

// DeleteImageByHash deletes the first image, in insertion order, whose hash
// cmp considers the same as hash. It reports whether an image was deleted.
func (s *Store) DeleteImageByHash(ctx context.Context, id domain.LibraryID, hash string, cmp store.HashComparator) (bool, error) {
	var deleted bool
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		hashes, err := listHashes(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, h := range hashes {
			if !cmp.SameString(hash, h.hash) {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, h.id); err != nil {
				return fmt.Errorf("delete image: %w", err)
			}
			deleted = true
			return nil
		}
		return nil
	})
	return deleted, err
}

// CopyImages copies every image of src into dst, skipping images whose hash
// matches one already in dst, including ones copied earlier in the same call.
// src is never modified.
func (s *Store) CopyImages(ctx context.Context, src, dst domain.LibraryID, cmp store.HashComparator) (copied, skipped int, err error) {
	err = s.withWriteTx(ctx, func(tx *sql.Tx) error {
		existing, err := listHashes(ctx, tx, dst)
		if err != nil {
			return err
		}
		targets := make([]string, 0, len(existing))
		for _, h := range existing {
			targets = append(targets, h.hash)
		}

		sources, err := listHashes(ctx, tx, src)
		if err != nil {
			return err
		}

	next:
		for _, h := range sources {
			for _, t := range targets {
				if cmp.SameString(h.hash, t) {
					skipped++
					continue next
				}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO images (library_id, data, phash)
				SELECT ?, data, phash FROM images WHERE id = ?`, dst, h.id); err != nil {
				return fmt.Errorf("copy image %d: %w", h.id, err)
			}
			targets = append(targets, h.hash)
			copied++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return copied, skipped, nil
}

// ForEachImage calls fn for every stored image in id order. Images are loaded
// one at a time and no cursor is held while fn runs, so fn may write.
func (s *Store) ForEachImage(ctx context.Context, fn func(*domain.Image) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM images ORDER BY id`)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := s.GetImage(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(img); err != nil {
			return err
		}
	}
	return nil
}

// UpdateImage replaces an image's payload and hash.
// Returns store.ErrNotFound if the image does not exist.
func (s *Store) UpdateImage(ctx context.Context, imageID int64, data []byte, hash string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE images SET data = ?, phash = ? WHERE id = ?`, data, hash, imageID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// Stats summarizes the store contents.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT group_id) FROM libraries),
			(SELECT COUNT(*) FROM libraries),
			(SELECT COUNT(*) FROM names),
			(SELECT COUNT(*) FROM images),
			(SELECT COALESCE(SUM(length(data)), 0) FROM images)`).
		Scan(&st.Contexts, &st.Libraries, &st.Names, &st.Images, &st.Bytes)
	return st, err
}
