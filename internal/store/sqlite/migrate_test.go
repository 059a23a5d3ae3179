package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/feiju-bot/feiju/internal/store"
)

const legacySchema = `
CREATE TABLE categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    group_id TEXT NOT NULL,
    UNIQUE(name, group_id)
);
CREATE TABLE images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    category_id INTEGER NOT NULL,
    data BLOB NOT NULL,
    phash TEXT NOT NULL,
    FOREIGN KEY(category_id) REFERENCES categories(id) ON DELETE CASCADE
);
CREATE TABLE aliases (
    alias_name TEXT NOT NULL,
    category_id INTEGER NOT NULL,
    group_id TEXT NOT NULL
);`

// newLegacyDB writes a legacy database and returns its path.
func newLegacyDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	defer db.Close()

	for _, stmt := range append([]string{legacySchema}, stmts...) {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return path
}

func TestMigrateLegacy_CategoryAndAlias(t *testing.T) {
	path := newLegacyDB(t,
		`INSERT INTO categories (id, name, group_id) VALUES (5, 'Foo', 'g1')`,
		`INSERT INTO aliases (alias_name, category_id, group_id) VALUES ('bar', 5, 'g1')`,
		`INSERT INTO images (id, category_id, data, phash) VALUES (11, 5, x'0102', 'abcdef0123456789')`,
	)

	s := openTestStore(t, path)
	ctx := context.Background()

	foo, err := s.ResolveLibrary(ctx, "foo", "g1")
	if err != nil {
		t.Fatalf("resolve foo: %v", err)
	}
	bar, err := s.ResolveLibrary(ctx, "bar", "g1")
	if err != nil {
		t.Fatalf("resolve bar: %v", err)
	}
	if foo != bar || foo != 5 {
		t.Errorf("foo=%d bar=%d, want both 5", foo, bar)
	}

	img, err := s.GetImage(ctx, 11)
	if err != nil {
		t.Fatalf("image id not preserved: %v", err)
	}
	if img.LibraryID != 5 || img.Hash != "abcdef0123456789" || len(img.Data) != 2 {
		t.Errorf("migrated image = %+v", img)
	}

	report, migrated := s.LegacyMigration()
	if !migrated {
		t.Fatal("LegacyMigration reported no migration")
	}
	if report.Categories != 1 || report.Aliases != 1 || report.Images != 1 {
		t.Errorf("migration report = %+v", report)
	}

	for _, table := range []string{"categories", "aliases", "images_new"} {
		exists, err := tableExists(ctx, s.db, table)
		if err != nil {
			t.Fatalf("tableExists: %v", err)
		}
		if exists {
			t.Errorf("table %s still exists", table)
		}
	}
}

func TestMigrateLegacy_CaseVariantsAndDuplicateAliases(t *testing.T) {
	path := newLegacyDB(t,
		`INSERT INTO categories (id, name, group_id) VALUES (1, 'Cat', 'g1')`,
		`INSERT INTO categories (id, name, group_id) VALUES (2, 'cat', 'g1')`,
		`INSERT INTO categories (id, name, group_id) VALUES (3, 'dog', 'g1')`,
		`INSERT INTO categories (id, name, group_id) VALUES (4, 'cat', 'g2')`,
		`INSERT INTO aliases (alias_name, category_id, group_id) VALUES ('DOG', 1, 'g1')`,
		`INSERT INTO aliases (alias_name, category_id, group_id) VALUES ('kitty', 2, 'g1')`,
		`INSERT INTO images (id, category_id, data, phash) VALUES (1, 1, x'01', '0000000000000001')`,
		`INSERT INTO images (id, category_id, data, phash) VALUES (2, 2, x'02', '0000000000000002')`,
		`INSERT INTO images (id, category_id, data, phash) VALUES (3, 99, x'03', '0000000000000003')`,
	)

	s := openTestStore(t, path)
	ctx := context.Background()

	cat, err := s.ResolveLibrary(ctx, "cat", "g1")
	if err != nil || cat != 1 {
		t.Fatalf("cat = %d, %v", cat, err)
	}
	if kitty, _ := s.ResolveLibrary(ctx, "kitty", "g1"); kitty != 1 {
		t.Errorf("kitty should follow merged category to 1, got %d", kitty)
	}
	// "DOG" folds to "dog", already a category name: skipped, not stolen.
	if dog, _ := s.ResolveLibrary(ctx, "dog", "g1"); dog != 3 {
		t.Errorf("dog = %d, want 3", dog)
	}
	if other, _ := s.ResolveLibrary(ctx, "cat", "g2"); other != 4 {
		t.Errorf("cat in g2 = %d, want 4", other)
	}

	images, err := s.ListImages(ctx, 1)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(images) != 2 {
		t.Errorf("merged library has %d images, want 2", len(images))
	}
	if _, err := s.GetImage(ctx, 3); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("orphan image should be dropped: %v", err)
	}
	if _, err := s.GetLibrary(ctx, 2); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("case variant library 2 should not exist: %v", err)
	}
}

func TestMigrateLegacy_Idempotent(t *testing.T) {
	path := newLegacyDB(t,
		`INSERT INTO categories (id, name, group_id) VALUES (1, 'a', 'g1')`,
	)

	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.Close()

	s2 := openTestStore(t, path)
	if id, err := s2.ResolveLibrary(context.Background(), "a", "g1"); err != nil || id != 1 {
		t.Errorf("after reopen: %d, %v", id, err)
	}
	if _, migrated := s2.LegacyMigration(); migrated {
		t.Error("second open should not report a migration")
	}
}

func TestMigrateLegacy_FailureRollsBack(t *testing.T) {
	// A pre-existing libraries row with the same id makes the migration fail.
	path := newLegacyDB(t,
		`CREATE TABLE libraries (id INTEGER PRIMARY KEY AUTOINCREMENT, group_id TEXT NOT NULL)`,
		`INSERT INTO libraries (id, group_id) VALUES (1, 'g1')`,
		`INSERT INTO categories (id, name, group_id) VALUES (1, 'a', 'g1')`,
		`INSERT INTO images (id, category_id, data, phash) VALUES (1, 1, x'01', 'h')`,
	)

	_, err := Open(path, nil)
	if !errors.Is(err, store.ErrMigration) {
		t.Fatalf("expected ErrMigration, got %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen raw: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for _, table := range []string{"categories", "images"} {
		exists, err := tableExists(ctx, db, table)
		if err != nil || !exists {
			t.Errorf("legacy table %s lost after failed migration: %v", table, err)
		}
	}
	var col int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('images') WHERE name = 'category_id'`).Scan(&col); err != nil || col != 1 {
		t.Errorf("legacy images table altered: %d, %v", col, err)
	}
	if exists, _ := tableExists(ctx, db, "names"); exists {
		t.Error("names table created by failed migration")
	}
}

func TestFoldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fold.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Simulate rows written without folding.
	for _, stmt := range []string{
		`INSERT INTO libraries (id, group_id) VALUES (1, 'g1'), (2, 'g1'), (3, 'g1')`,
		`INSERT INTO names (name, library_id, group_id) VALUES ('foo', 1, 'g1'), ('FOO', 2, 'g1'), ('Bar', 3, 'g1')`,
		`INSERT INTO images (library_id, data, phash) VALUES (2, x'02', 'h')`,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	s.Close()

	s2 := openTestStore(t, path)
	ctx := context.Background()

	if id, err := s2.ResolveLibrary(ctx, "foo", "g1"); err != nil || id != 1 {
		t.Errorf("foo = %d, %v", id, err)
	}
	if _, err := s2.ResolveLibrary(ctx, "FOO", "g1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FOO should be gone: %v", err)
	}
	if id, err := s2.ResolveLibrary(ctx, "bar", "g1"); err != nil || id != 3 {
		t.Errorf("bar = %d, %v", id, err)
	}
	images, _ := s2.ListImages(ctx, 1)
	if len(images) != 1 {
		t.Errorf("images of merged library: %d", len(images))
	}
}
