package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/nerrad567/smartpark-core/migrations"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"0001_first.up.sql":    {Data: []byte("CREATE TABLE first (id TEXT PRIMARY KEY);")},
		"0001_first.down.sql":  {Data: []byte("DROP TABLE first;")},
		"0002_second.up.sql":   {Data: []byte("CREATE TABLE second (id TEXT PRIMARY KEY);")},
		"0002_second.down.sql": {Data: []byte("DROP TABLE second;")},
		"README.md":            {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"first", "second", "schema_migrations"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing after Migrate()", table)
		}
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d, want 2, 0", len(applied), len(pending))
	}
	if applied[0].Version != "0001" || applied[1].Version != "0002" {
		t.Errorf("applied versions = %s, %s", applied[0].Version, applied[1].Version)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "second") {
		t.Error("table second should be dropped")
	}
	if !tableExists(t, db, "first") {
		t.Error("table first should remain")
	}

	_, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Version != "0002" {
		t.Errorf("pending = %v, want [0002]", pending)
	}
}

func TestMigrateDown_NothingApplied(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate(nil) error = %v", err)
	}
	if err := db.MigrateDown(context.Background(), testMigrations()); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrate_FailureStopsAndRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"0001_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"0002_broken.up.sql": {Data: []byte("CREATE TABLE broken (id TEXT); NOT SQL;")},
	}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() should fail on broken SQL")
	}
	if !tableExists(t, db, "ok") {
		t.Error("earlier migration should stay committed")
	}
	if tableExists(t, db, "broken") {
		t.Error("failed migration should be rolled back")
	}
}

func TestLoadMigrations_MissingUp(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	}
	if _, err := LoadMigrations(fsys); err == nil {
		t.Error("LoadMigrations() should reject a down file without an up file")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate(embedded) error = %v", err)
	}
	if !tableExists(t, db, "bay_events") {
		t.Error("bay_events table missing")
	}
	if err := db.MigrateDown(context.Background(), migrations.FS); err != nil {
		t.Fatalf("MigrateDown(embedded) error = %v", err)
	}
	if tableExists(t, db, "bay_events") {
		t.Error("bay_events should be dropped by the down migration")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"0001_bay_events.up.sql", "0001", "bay_events", true, true},
		{"0001_bay_events.down.sql", "0001", "bay_events", false, true},
		{"0012_add_index.up.sql", "0012", "add_index", true, true},
		{"0001_bay_events.sql", "", "", false, false},
		{"bay_events.up.sql", "", "", false, false},
		{"0001.up.sql", "", "", false, false},
		{"0001_bay_events.up.txt", "", "", false, false},
		{"v1_bay_events.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := ParseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("ParseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
