package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseMigrations_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_orders.up.sql":    {Data: []byte("CREATE TABLE orders (id TEXT);")},
		"sql/migrations/0002_orders.down.sql":  {Data: []byte("DROP TABLE orders;")},
		"sql/migrations/0001_catalog.up.sql":   {Data: []byte("CREATE TABLE products (id TEXT);")},
		"sql/migrations/0001_catalog.down.sql": {Data: []byte("DROP TABLE products;")},
	}

	set, err := parseMigrations(fsys)
	if err != nil {
		t.Fatalf("parseMigrations failed: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(set))
	}
	if set[0].Version != 1 || set[0].Name != "catalog" || !strings.HasPrefix(set[0].Up, "CREATE TABLE products") {
		t.Fatalf("unexpected first migration: %+v", set[0])
	}
	if set[1].Version != 2 || set[1].Down != "DROP TABLE orders;" {
		t.Fatalf("unexpected second migration: %+v", set[1])
	}
}

func TestParseMigrations_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql": {Data: []byte("SELECT 1;")},
			},
			want: "both up and down",
		},
		{
			name: "invalid file name",
			fsys: fstest.MapFS{
				"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")},
			},
			want: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("  \n")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("SELECT 1;")},
			},
			want: "empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("SELECT 1;")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("SELECT 1;")},
			},
			want: "name mismatch",
		},
		{
			name: "no files",
			fsys: fstest.MapFS{
				"sql/migrations/.keep/x": {Data: []byte("")},
			},
			want: "no migration files",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseMigrations(tc.fsys)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	set, err := parseMigrations(embeddedMigrations)
	if err != nil {
		t.Fatalf("embedded migrations are invalid: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 embedded migrations, got %d", len(set))
	}
}

func TestMigrationStatusPending(t *testing.T) {
	if got := (MigrationStatus{Applied: 1, Available: 2}).Pending(); got != 1 {
		t.Fatalf("expected 1 pending, got %d", got)
	}
	if got := (MigrationStatus{Applied: 3, Available: 2}).Pending(); got != 0 {
		t.Fatalf("expected 0 pending, got %d", got)
	}
}
