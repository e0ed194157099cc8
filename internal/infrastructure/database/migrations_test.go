package database

import (
	"context"
	"embed"
	"testing"
)

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

// useTestMigrations points the package at testdata for the duration of t.
func useTestMigrations(t *testing.T, fsys embed.FS, dir string) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})
	MigrationsFS = fsys
	MigrationsDir = dir
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	useTestMigrations(t, testMigrationsFS, "testdata")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_devices") {
		t.Fatal("table test_devices not created")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 1 and 0", len(applied), len(pending))
	}

	// Idempotent.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useTestMigrations(t, testMigrationsFS, "testdata")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_devices") {
		t.Error("table test_devices should have been dropped")
	}

	applied, _, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected 0 applied migrations after rollback, got %d", len(applied))
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	var emptyFS embed.FS
	useTestMigrations(t, emptyFS, ".")
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestLoadMigrations(t *testing.T) {
	useTestMigrations(t, testMigrationsFS, "testdata")

	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("len = %d, want 1", len(migrations))
	}
	m := migrations[0]
	if m.Version != "20260101_000000" || m.Name != "test_devices" {
		t.Errorf("migration = %s/%s", m.Version, m.Name)
	}
	if m.UpSQL == "" || m.DownSQL == "" {
		t.Error("both directions should be loaded")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantIsUp    bool
		wantOk      bool
	}{
		{"20260301_120000_upnp_uuids.up.sql", "20260301_120000", "upnp_uuids", true, true},
		{"20260301_120000_upnp_uuids.down.sql", "20260301_120000", "upnp_uuids", false, true},
		{"readme.txt", "", "", false, false},
		{"20260301_120000_upnp_uuids.sql", "", "", false, false},
		{"invalid.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || isUp != tt.wantIsUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, name, isUp, tt.wantVersion, tt.wantName, tt.wantIsUp)
			}
		})
	}
}
