package store

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func testRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenRaw(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrationsFreshDB(t *testing.T) {
	db := testRawDB(t)

	if err := runMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}

	for _, table := range []string{"images", "image_tags"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count); err != nil {
			t.Fatalf("check %s: %v", table, err)
		}
		if count != 1 {
			t.Fatalf("%s table not created", table)
		}
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := testRawDB(t)

	if err := runMigrations(db); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := runMigrations(db); err != nil {
		t.Fatalf("second run: %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
}

func TestMigrationPlan(t *testing.T) {
	db := testRawDB(t)

	plan, err := MigrationPlan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.CurrentVersion != 0 {
		t.Fatalf("expected current 0, got %d", plan.CurrentVersion)
	}
	if plan.AvailableVersion != 2 {
		t.Fatalf("expected available 2, got %d", plan.AvailableVersion)
	}
	if len(plan.Pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(plan.Pending))
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	plan, err = MigrationPlan(db)
	if err != nil {
		t.Fatalf("plan after run: %v", err)
	}
	if len(plan.Pending) != 0 {
		t.Fatalf("expected no pending migrations, got %v", plan.Pending)
	}
}

func TestMigration002AddsBlobColumns(t *testing.T) {
	db := testRawDB(t)
	if err := runMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	_, err := db.Exec(`INSERT INTO images (id, filename, ext, media_type, size_bytes, sha256, created_at, updated_at)
		VALUES ('m-1', 'a.png', 'png', 'image/png', 7, 'ff', '2024-01-01T00:00:00.000000000Z', '2024-01-01T00:00:00.000000000Z')`)
	if err != nil {
		t.Fatalf("insert with new columns: %v", err)
	}

	var size int64
	if err := db.QueryRow("SELECT size_bytes FROM images WHERE id = 'm-1'").Scan(&size); err != nil {
		t.Fatalf("query size: %v", err)
	}
	if size != 7 {
		t.Fatalf("expected size 7, got %d", size)
	}
}
