package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/normalize"
	"github.com/feiju-bot/feiju/internal/store"
)

// Legacy layout: categories(id, name, group_id) doubled as library and name,
// aliases(alias_name, category_id, group_id) held extra names and
// images(id, category_id, data, phash) pointed at categories.
const (
	createLibrariesSQL = `
		CREATE TABLE IF NOT EXISTS libraries (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id TEXT NOT NULL
		)`
	createNamesSQL = `
		CREATE TABLE IF NOT EXISTS names (
			name       TEXT NOT NULL,
			library_id INTEGER NOT NULL,
			group_id   TEXT NOT NULL,
			PRIMARY KEY (name, group_id),
			FOREIGN KEY (library_id) REFERENCES libraries(id) ON DELETE CASCADE
		)`
	createImagesNewSQL = `
		CREATE TABLE images_new (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			library_id INTEGER NOT NULL,
			data       BLOB NOT NULL,
			phash      TEXT NOT NULL,
			FOREIGN KEY (library_id) REFERENCES libraries(id) ON DELETE CASCADE
		)`
)

// MigrationReport summarizes a legacy schema migration.
type MigrationReport struct {
	Categories     int
	MergedVariants int
	Aliases        int
	SkippedAliases int
	Images         int
	OrphanImages   int
}

type legacyCategory struct {
	id      domain.LibraryID
	name    string
	groupID string
}

// migrateLegacy converts the legacy category schema in one transaction.
// SQLite DDL is transactional, so the legacy tables are only gone once the
// whole conversion commits; any error rolls everything back. A store without
// a categories table is left alone, which makes the migration idempotent.
func (s *Store) migrateLegacy(ctx context.Context) error {
	legacy, err := tableExists(ctx, s.db, "categories")
	if err != nil {
		return fmt.Errorf("detect legacy schema: %w", err)
	}
	if !legacy {
		return nil
	}

	s.logger.Info("legacy category schema detected, migrating")

	var report MigrationReport
	err = s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var err error
		report, err = s.migrateLegacyTx(ctx, tx)
		return err
	})
	if err != nil {
		s.logger.Error("legacy migration failed, store left unchanged", "error", err)
		return err
	}

	s.logger.Info("legacy migration complete",
		"categories", report.Categories,
		"merged_case_variants", report.MergedVariants,
		"aliases", report.Aliases,
		"skipped_aliases", report.SkippedAliases,
		"images", report.Images,
		"orphan_images", report.OrphanImages,
	)
	s.migration = &report
	return nil
}

// LegacyMigration returns the report of the legacy conversion Open ran, if
// any. Migrated images still carry hashes from the old hashing pipeline.
func (s *Store) LegacyMigration() (MigrationReport, bool) {
	if s.migration == nil {
		return MigrationReport{}, false
	}
	return *s.migration, true
}

func (s *Store) migrateLegacyTx(ctx context.Context, tx *sql.Tx) (MigrationReport, error) {
	var report MigrationReport

	for _, ddl := range []string{createLibrariesSQL, createNamesSQL} {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return report, fmt.Errorf("create tables: %w", err)
		}
	}

	categories, err := loadCategories(ctx, tx)
	if err != nil {
		return report, err
	}
	report.Categories = len(categories)

	// Categories whose names only differed by case collapse into the first one.
	target := make(map[domain.LibraryID]domain.LibraryID, len(categories))
	groupOf := make(map[domain.LibraryID]string, len(categories))
	for _, c := range categories {
		name := normalize.Name(c.name)
		if name == "" {
			name = c.name
		}

		existing, err := resolveLibrary(ctx, tx, name, c.groupID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return report, err
		}
		if err == nil {
			target[c.id] = existing
			report.MergedVariants++
			s.logger.Info("merging case variant category",
				"category", c.name, "into_library", existing, "context", c.groupID)
			continue
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO libraries (id, group_id) VALUES (?, ?)`, c.id, c.groupID); err != nil {
			return report, fmt.Errorf("insert library %d: %w", c.id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO names (name, library_id, group_id) VALUES (?, ?, ?)`,
			name, c.id, c.groupID); err != nil {
			return report, fmt.Errorf("insert name %q: %w", name, err)
		}
		target[c.id] = c.id
		groupOf[c.id] = c.groupID
	}

	hasAliases, err := tableExists(ctx, tx, "aliases")
	if err != nil {
		return report, err
	}
	if hasAliases {
		if err := s.migrateAliases(ctx, tx, target, groupOf, &report); err != nil {
			return report, err
		}
	}

	if err := migrateImages(ctx, tx, target, &report); err != nil {
		return report, err
	}

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS aliases`,
		`DROP TABLE images`,
		`DROP TABLE categories`,
		`ALTER TABLE images_new RENAME TO images`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return report, fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return report, nil
}

func loadCategories(ctx context.Context, tx *sql.Tx) ([]legacyCategory, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name, group_id FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	defer rows.Close()

	var categories []legacyCategory
	for rows.Next() {
		var c legacyCategory
		if err := rows.Scan(&c.id, &c.name, &c.groupID); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// migrateAliases binds each legacy alias to its category's library. Aliases
// that collide with an existing name are skipped, never overwritten.
func (s *Store) migrateAliases(ctx context.Context, tx *sql.Tx, target map[domain.LibraryID]domain.LibraryID, groupOf map[domain.LibraryID]string, report *MigrationReport) error {
	rows, err := tx.QueryContext(ctx, `SELECT alias_name, category_id FROM aliases`)
	if err != nil {
		return fmt.Errorf("read aliases: %w", err)
	}
	type alias struct {
		name       string
		categoryID domain.LibraryID
	}
	var aliases []alias
	for rows.Next() {
		var a alias
		if err := rows.Scan(&a.name, &a.categoryID); err != nil {
			rows.Close()
			return err
		}
		aliases = append(aliases, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, a := range aliases {
		lib, ok := target[a.categoryID]
		if !ok {
			report.SkippedAliases++
			s.logger.Warn("skipping alias of missing category", "alias", a.name, "category_id", a.categoryID)
			continue
		}
		name := normalize.Name(a.name)
		if name == "" {
			report.SkippedAliases++
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO names (name, library_id, group_id) VALUES (?, ?, ?)`,
			name, lib, groupOf[lib])
		if err != nil {
			return fmt.Errorf("insert alias %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			report.SkippedAliases++
			s.logger.Warn("skipping duplicate alias", "alias", name, "context", groupOf[lib])
			continue
		}
		report.Aliases++
	}
	return nil
}

// migrateImages copies legacy images into the new table keeping their ids.
// Images of case-variant categories follow their category into the surviving
// library. Images whose category no longer exists are unreachable and dropped.
func migrateImages(ctx context.Context, tx *sql.Tx, target map[domain.LibraryID]domain.LibraryID, report *MigrationReport) error {
	if _, err := tx.ExecContext(ctx, createImagesNewSQL); err != nil {
		return fmt.Errorf("create images_new: %w", err)
	}

	for from, to := range target {
		if from == to {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE images SET category_id = ? WHERE category_id = ?`, to, from); err != nil {
			return fmt.Errorf("remap images of category %d: %w", from, err)
		}
	}

	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM images
		WHERE category_id NOT IN (SELECT id FROM libraries)`).Scan(&report.OrphanImages); err != nil {
		return fmt.Errorf("count orphan images: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO images_new (id, library_id, data, phash)
		SELECT id, category_id, data, phash FROM images
		WHERE category_id IN (SELECT id FROM libraries)`)
	if err != nil {
		return fmt.Errorf("copy images: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	report.Images = int(n)
	return nil
}

// foldNames rewrites names that are not in folded form, for example rows
// written before folding normalized Unicode. When the folded form is already
// bound to another library of the same context, the two libraries merge into
// the one that owns the folded name.
func (s *Store) foldNames(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, library_id, group_id FROM names`)
	if err != nil {
		return fmt.Errorf("read names: %w", err)
	}
	var pending []domain.NameBinding
	for rows.Next() {
		var b domain.NameBinding
		if err := rows.Scan(&b.Name, &b.LibraryID, &b.Context); err != nil {
			rows.Close()
			return err
		}
		if !normalize.IsFolded(b.Name) && normalize.Name(b.Name) != "" {
			pending = append(pending, b)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	s.logger.Info("folding stored names", "count", len(pending))

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, b := range pending {
			// Earlier merges may have moved this name to another library.
			current, err := resolveLibrary(ctx, tx, b.Name, b.Context)
			if err != nil {
				return fmt.Errorf("resolve %q: %w", b.Name, err)
			}

			folded := normalize.Name(b.Name)
			owner, err := resolveLibrary(ctx, tx, folded, b.Context)
			switch {
			case err == nil:
				if owner != current {
					if _, _, err := mergeLibrariesTx(ctx, tx, current, owner); err != nil {
						return fmt.Errorf("merge %d into %d: %w", current, owner, err)
					}
					s.logger.Info("merged libraries with case-variant names",
						"name", folded, "src", current, "dst", owner, "context", b.Context)
				}
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM names WHERE name = ? AND group_id = ?`, b.Name, b.Context); err != nil {
					return err
				}
			case errors.Is(err, store.ErrNotFound):
				if _, err := tx.ExecContext(ctx,
					`UPDATE names SET name = ? WHERE name = ? AND group_id = ?`,
					folded, b.Name, b.Context); err != nil {
					return fmt.Errorf("rename %q: %w", b.Name, err)
				}
			default:
				return err
			}
		}
		return nil
	})
}
