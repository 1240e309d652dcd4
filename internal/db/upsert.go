package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // target table (e.g., "equitee.demographic_areas")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
	TouchColumn  string   // optional timestamp column set to now() on conflict
}

func (c UpsertConfig) validate() error {
	if len(c.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(c.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (c UpsertConfig) updateColumns() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	conflict := make(map[string]bool, len(c.ConflictKeys))
	for _, k := range c.ConflictKeys {
		conflict[k] = true
	}
	var cols []string
	for _, col := range c.Columns {
		if !conflict[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

func (c UpsertConfig) tempTable() string {
	return "_tmp_upsert_" + strings.ReplaceAll(c.Table, ".", "_")
}

// upsertSQL builds the INSERT ... SELECT ... ON CONFLICT statement that moves
// rows from the temp table into the target.
func (c UpsertConfig) upsertSQL() string {
	cols := quoteAndJoin(c.Columns)

	var sets []string
	for _, col := range c.updateColumns() {
		id := pgx.Identifier{col}.Sanitize()
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}
	if c.TouchColumn != "" {
		sets = append(sets, pgx.Identifier{c.TouchColumn}.Sanitize()+" = now()")
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(c.Table), cols, cols,
		pgx.Identifier{c.tempTable()}.Sanitize(),
		quoteAndJoin(c.ConflictKeys), action,
	)
}

// BulkUpsert stages rows in a transaction-scoped temp table with COPY and
// merges them into the target with INSERT ... ON CONFLICT. The temp table is
// dropped on commit.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{cfg.tempTable()}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{cfg.tempTable()}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, cfg.upsertSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable handles schema-qualified table names like "equitee.facilities".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
