package persistence

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"strings"

	gerrors "github.com/go-faster/errors"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed schema/*.sql
var migrationsFS embed.FS

const migrationsDir = "schema"

const (
	gooseUp   = "-- +goose Up"
	gooseDown = "-- +goose Down"
)

// SchemaSQL returns the Up sections of the embedded migrations in version
// order.
func SchemaSQL() (string, error) {
	names, err := fs.Glob(migrationsFS, migrationsDir+"/*.sql")
	if err != nil {
		return "", err
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		raw, err := migrationsFS.ReadFile(name)
		if err != nil {
			return "", err
		}
		b.WriteString("-- " + strings.TrimPrefix(name, migrationsDir+"/") + "\n")
		b.WriteString(strings.TrimSpace(extractGooseUp(string(raw))))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func extractGooseUp(raw string) string {
	start := strings.Index(raw, gooseUp)
	if start < 0 {
		return raw
	}
	raw = raw[start+len(gooseUp):]
	if end := strings.Index(raw, gooseDown); end >= 0 {
		raw = raw[:end]
	}
	return raw
}

// Migrator runs the embedded goose migrations over database/sql so that it
// can run before the pgx pool exists.
type Migrator struct {
	DB       *sql.DB
	provider *goose.Provider
}

func NewMigrator(db *sql.DB) (*Migrator, error) {
	sub, err := fs.Sub(migrationsFS, migrationsDir)
	if err != nil {
		return nil, gerrors.Wrap(err, "open embedded migrations")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return nil, gerrors.Wrap(err, "create migration provider")
	}
	return &Migrator{DB: db, provider: provider}, nil
}

func OpenMigrator(dsn string) (*Migrator, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, gerrors.Wrap(err, "open database")
	}
	m, err := NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

// Close closes the underlying database.
func (m *Migrator) Close() error { return m.provider.Close() }

// Versions lists the embedded migration versions.
func (m *Migrator) Versions() []int64 {
	sources := m.provider.ListSources()
	out := make([]int64, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Version)
	}
	return out
}

// Up applies every pending migration and returns the versions it applied.
func (m *Migrator) Up(ctx context.Context) ([]int64, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "apply org migrations")
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

// Version is the highest migration version recorded in the database.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, gerrors.Wrap(err, "read schema version")
	}
	return v, nil
}
