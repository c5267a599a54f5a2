package postgres

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
)

func TestEmbeddedMigrationsLoad(t *testing.T) {
	// sql.Open does not dial, so this runs without a database.
	db, err := sql.Open("pgx", "postgres://kedaipos@127.0.0.1:1/kedaipos")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	provider, err := newMigrationProvider(db)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	sources := provider.ListSources()
	if len(sources) != 1 || sources[0].Version != 1 || sources[0].Type != goose.TypeSQL {
		t.Fatalf("unexpected migration sources %+v", sources)
	}

	body, err := migrationFiles.ReadFile("migrations/001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.HasPrefix(string(body), "-- +goose Up") || !strings.Contains(string(body), "-- +goose Down") {
		t.Fatalf("migration must carry goose up and down sections")
	}
}
