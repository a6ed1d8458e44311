// Package store persists enriched company records in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/corpfetch/internal/core"
	"github.com/JonMunkholm/corpfetch/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// TableName is the table company records are copied into.
const TableName = "company"

// columns must match the CopyFrom row order in SaveCompanies.
var columns = []string{
	"tel_sales_num",
	"company_name",
	"bus_registration_num",
	"cor_registration_num",
	"ad_district_code",
}

var schemaSQL = []string{`
CREATE TABLE IF NOT EXISTS company (
	company_id BIGSERIAL PRIMARY KEY,
	tel_sales_num TEXT,
	company_name TEXT,
	bus_registration_num TEXT,
	cor_registration_num TEXT,
	ad_district_code TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS company_bus_registration_num_idx ON company (bus_registration_num)`,
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a core.CompanyStore backed by a pgx pool.
type Postgres struct {
	db DB
}

// NewPostgres wraps db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the company table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaSQL {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create %s schema: %w", TableName, err)
		}
	}
	return nil
}

// SaveCompanies copies records into the company table in one transaction
// and returns the number of rows written. Empty values are stored as NULL,
// so rows the registry had no match for keep a NULL cor_registration_num.
func (p *Postgres) SaveCompanies(ctx context.Context, records []core.CompanyRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	source := pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
		r := records[i]
		return []any{
			toText(r.TelSalesNum),
			toText(r.CompanyName),
			toText(r.BusRegistrationNum),
			toText(r.CorRegistrationNum),
			toText(r.AdDistrictCode),
		}, nil
	})

	n, err := tx.CopyFrom(ctx, pgx.Identifier{TableName}, columns, source)
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", TableName, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	logging.FromContext(ctx).Info("companies stored", "table", TableName, "rows", n)
	return n, nil
}

// toText converts a projected value to pgtype.Text.
// Returns invalid (NULL) if the value is empty or only whitespace.
func toText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
