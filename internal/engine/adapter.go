// Package engine is the table engine adapter: a thin façade
// over an embedded SQL engine (modernc.org/sqlite, pure Go, driven through
// database/sql) that imports delimited text, runs the core's generated SQL,
// and reads/writes rows for the Snapshot Store and Chunk Manager. All
// mutating calls are serialized through a process-wide engine mutex; the
// adapter never lets the embedded engine silently mutate state on error.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cleanslate/core/internal/diag"
	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/sqlguard"
)

// Engine owns the single embedded SQL connection and serializes every
// mutating call behind mu ("at most one mutating table-engine
// call is in flight").
type Engine struct {
	db    *sql.DB
	guard *sqlguard.Guard
	log   *diag.Logger

	mu sync.Mutex // the engine mutex
}

// Open creates an in-process embedded SQL engine. dsn is passed straight to
// modernc.org/sqlite; pass "" for a shared-cache in-memory database, which
// every Engine opened with "" in the same process sees.
func Open(dsn string, log *diag.Logger) (*Engine, error) {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening embedded engine: %w", err)
	}
	// A single live connection keeps every caller on the same in-memory
	// database and gives us, for free, the serialization the engine mutex
	// additionally enforces at the semantic level (rollback-on-error, not
	// just FIFO access).
	db.SetMaxOpenConns(1)

	return &Engine{db: db, guard: sqlguard.New(), log: log}, nil
}

func (e *Engine) Close() error { return e.db.Close() }

// Exec runs a mutating statement built internally by the core; the
// statement is shape-validated by sqlguard before it runs. Query and the
// engine's own helpers (inserts, counts, PRAGMA calls) reach the database
// by their own paths.
func (e *Engine) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := e.guard.Validate(query); err != nil {
		return nil, domain.NewErrEngine(query, err.Error())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewErrEngine(query, err.Error())
	}
	return res, nil
}

// Query runs a read-only statement. It does not take the engine mutex.
// Because the engine is pinned to a single connection, an open *sql.Rows
// holds that connection until it is closed, so reads serialize with other
// reads and with writes at the database/sql level.
func (e *Engine) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := e.guard.Validate(query); err != nil {
		return nil, domain.NewErrEngine(query, err.Error())
	}
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewErrEngine(query, err.Error())
	}
	return rows, nil
}

// TableExists reports whether name is a live table in the engine.
func (e *Engine) TableExists(ctx context.Context, name string) (bool, error) {
	rows, err := e.Query(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, name)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// ListTables returns every user-created table name (hot-snapshot tables
// prefixed "__snap_" and diff result tables prefixed "_diff_" excluded),
// used by persist_now to discover what to re-snapshot.
func (e *Engine) ListTables(ctx context.Context) ([]string, error) {
	rows, err := e.Query(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if len(name) >= 7 && name[:7] == "__snap_" {
			continue
		}
		if len(name) >= 6 && name[:6] == "_diff_" {
			continue
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DescribeColumns returns the user-visible columns of name (identity
// columns are filtered out).
func (e *Engine) DescribeColumns(ctx context.Context, name string) ([]domain.ColumnInfo, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(name)))
	if err != nil {
		return nil, domain.NewErrEngine("PRAGMA table_info", err.Error())
	}
	defer rows.Close()

	var cols []domain.ColumnInfo
	for rows.Next() {
		var cid int
		var colName, colType string
		var notNull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		if colName == domain.CSIDColumn || colName == domain.OriginIDColumn {
			continue
		}
		cols = append(cols, domain.ColumnInfo{
			Name:     colName,
			Type:     sqliteTypeToDomain(colType),
			Nullable: notNull == 0,
		})
	}
	return cols, rows.Err()
}

// RowCount returns the live row count of name.
func (e *Engine) RowCount(ctx context.Context, name string) (int64, error) {
	var n int64
	row := e.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(name)))
	if err := row.Scan(&n); err != nil {
		return 0, domain.NewErrEngine("SELECT COUNT(*)", err.Error())
	}
	return n, nil
}

// UpdateCell updates exactly one cell, keyed by _cs_id, never by row
// offset.
func (e *Engine) UpdateCell(ctx context.Context, table string, csID int64, column string, newValue interface{}) error {
	q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", quoteIdent(table), quoteIdent(column), domain.CSIDColumn)
	_, err := e.Exec(ctx, q, newValue, csID)
	return err
}

// EstimateCSIDForOffset seeds keyset cursors when only a row offset is
// known. Returns nil if the table has fewer rows than
// offset+1.
func (e *Engine) EstimateCSIDForOffset(ctx context.Context, table string, offset int64) (*int64, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s ASC LIMIT 1 OFFSET ?",
		domain.CSIDColumn, quoteIdent(table), domain.CSIDColumn)
	var csID int64
	row := e.db.QueryRowContext(ctx, q, offset)
	if err := row.Scan(&csID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, domain.NewErrEngine(q, err.Error())
	}
	return &csID, nil
}

// DropTable drops a live table, ignoring "does not exist".
func (e *Engine) DropTable(ctx context.Context, name string) error {
	_, err := e.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(name)))
	return err
}

// Checkpoint releases the engine's internal buffer pool memory after a
// large export, running SQLite's WAL checkpoint under the hood.
func (e *Engine) Checkpoint(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return domain.NewErrEngine("PRAGMA wal_checkpoint", err.Error())
	}
	return nil
}

// CreateTable creates name with the given user columns plus both identity
// columns.
func (e *Engine) CreateTable(ctx context.Context, name string, cols []domain.ColumnInfo) error {
	ddl := fmt.Sprintf("CREATE TABLE %s (%s INTEGER PRIMARY KEY, %s TEXT",
		quoteIdent(name), domain.CSIDColumn, domain.OriginIDColumn)
	for _, c := range cols {
		ddl += fmt.Sprintf(", %s %s", quoteIdent(c.Name), domainTypeToSQLite(c.Type))
	}
	ddl += ")"
	_, err := e.Exec(ctx, ddl)
	return err
}

// InsertRows bulk-inserts rows into table, assigning fresh monotonic
// _cs_id values continuing from the table's current maximum and a fresh
// _cs_origin_id per row.
func (e *Engine) InsertRows(ctx context.Context, table string, cols []domain.ColumnInfo, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	nextCSID, err := e.nextCSID(ctx, table)
	if err != nil {
		return err
	}

	colNames := make([]string, 0, len(cols)+2)
	colNames = append(colNames, domain.CSIDColumn, domain.OriginIDColumn)
	for _, c := range cols {
		colNames = append(colNames, c.Name)
	}
	placeholders := make([]string, len(colNames))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	quoted := make([]string, len(colNames))
	for i, n := range colNames {
		quoted[i] = quoteIdent(n)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), join(quoted, ", "), join(placeholders, ", "))

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guard.Validate(insertSQL); err != nil {
		return domain.NewErrEngine(insertSQL, err.Error())
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewErrEngine("BEGIN", err.Error())
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return domain.NewErrEngine(insertSQL, err.Error())
	}
	defer stmt.Close()

	for i, r := range rows {
		args := make([]interface{}, 0, len(colNames))
		args = append(args, nextCSID+int64(i), uuid.NewString())
		for _, c := range cols {
			args = append(args, r[c.Name])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return domain.NewErrEngine(insertSQL, err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.NewErrEngine("COMMIT", err.Error())
	}
	return nil
}

// InsertRow inserts a single row and returns the _cs_id/_cs_origin_id it
// was assigned, used by the Command Executor's insert_row command where
// the caller needs the identity back to build the inverse delete.
func (e *Engine) InsertRow(ctx context.Context, table string, cols []domain.ColumnInfo, row domain.Row) (csID int64, originID string, err error) {
	e.mu.Lock()
	nextCSID, err := e.nextCSIDLocked(ctx, table)
	if err != nil {
		e.mu.Unlock()
		return 0, "", err
	}
	originID = uuid.NewString()

	colNames := make([]string, 0, len(cols)+2)
	colNames = append(colNames, domain.CSIDColumn, domain.OriginIDColumn)
	for _, c := range cols {
		colNames = append(colNames, c.Name)
	}
	quoted := make([]string, len(colNames))
	placeholders := make([]string, len(colNames))
	for i, n := range colNames {
		quoted[i] = quoteIdent(n)
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), join(quoted, ", "), join(placeholders, ", "))

	if err := e.guard.Validate(insertSQL); err != nil {
		e.mu.Unlock()
		return 0, "", domain.NewErrEngine(insertSQL, err.Error())
	}
	args := make([]interface{}, 0, len(colNames))
	args = append(args, nextCSID, originID)
	for _, c := range cols {
		args = append(args, row[c.Name])
	}
	_, execErr := e.db.ExecContext(ctx, insertSQL, args...)
	e.mu.Unlock()
	if execErr != nil {
		return 0, "", domain.NewErrEngine(insertSQL, execErr.Error())
	}
	return nextCSID, originID, nil
}

func (e *Engine) nextCSIDLocked(ctx context.Context, table string) (int64, error) {
	return e.nextCSID(ctx, table)
}

// InsertRowsPreserveIdentity reinserts rows that already carry their
// original _cs_id/_cs_origin_id values (spec's changelog-replay and
// delete_row-undo paths), rather than assigning fresh ones. Callers are
// responsible for ensuring the _cs_id values do not collide with any row
// currently in the table.
func (e *Engine) InsertRowsPreserveIdentity(ctx context.Context, table string, cols []domain.ColumnInfo, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	colNames := make([]string, 0, len(cols)+2)
	colNames = append(colNames, domain.CSIDColumn, domain.OriginIDColumn)
	for _, c := range cols {
		colNames = append(colNames, c.Name)
	}
	quoted := make([]string, len(colNames))
	placeholders := make([]string, len(colNames))
	for i, n := range colNames {
		quoted[i] = quoteIdent(n)
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), join(quoted, ", "), join(placeholders, ", "))

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Validate(insertSQL); err != nil {
		return domain.NewErrEngine(insertSQL, err.Error())
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewErrEngine("BEGIN", err.Error())
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return domain.NewErrEngine(insertSQL, err.Error())
	}
	defer stmt.Close()
	for _, r := range rows {
		args := make([]interface{}, 0, len(colNames))
		args = append(args, r[domain.CSIDColumn], r[domain.OriginIDColumn])
		for _, c := range cols {
			args = append(args, r[c.Name])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return domain.NewErrEngine(insertSQL, err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.NewErrEngine("COMMIT", err.Error())
	}
	return nil
}

func (e *Engine) nextCSID(ctx context.Context, table string) (int64, error) {
	var max sql.NullInt64
	row := e.db.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", domain.CSIDColumn, quoteIdent(table)))
	if err := row.Scan(&max); err != nil {
		return 0, domain.NewErrEngine("SELECT MAX(_cs_id)", err.Error())
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

// DeleteByCSIDs deletes rows keyed by _cs_id.
func (e *Engine) DeleteByCSIDs(ctx context.Context, table string, csids []int64) error {
	if len(csids) == 0 {
		return nil
	}
	placeholders := make([]string, len(csids))
	args := make([]interface{}, len(csids))
	for i, id := range csids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", quoteIdent(table), domain.CSIDColumn, join(placeholders, ", "))
	_, err := e.Exec(ctx, q, args...)
	return err
}

// ScanRows materializes every remaining row of rows into domain.Row
// values keyed by column name, as reported by the driver itself (so
// callers don't need to track column order separately).
func ScanRows(rows *sql.Rows) ([]domain.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []domain.Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(domain.Row, len(cols))
		for i, c := range cols {
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RenameColumn applies a metadata-only column rename.
func (e *Engine) RenameColumn(ctx context.Context, table, oldName, newName string) error {
	q := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", quoteIdent(table), quoteIdent(oldName), quoteIdent(newName))
	_, err := e.Exec(ctx, q)
	return err
}

// ReorderColumns rebuilds table so its user columns appear in newOrder.
// sqlite has no physical column-reorder statement, so the adapter
// recreates the table via CREATE TABLE ... AS SELECT with the columns
// listed in the desired order, then swaps it in under the original name.
func (e *Engine) ReorderColumns(ctx context.Context, table string, newOrder []string) error {
	tmp := "__reorder_" + table
	colNames := append([]string{domain.CSIDColumn, domain.OriginIDColumn}, newOrder...)
	q := fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM %s ORDER BY %s",
		quoteIdent(tmp), joinQuoted(colNames), quoteIdent(table), domain.CSIDColumn)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard.Validate(q); err != nil {
		return domain.NewErrEngine(q, err.Error())
	}
	if _, err := e.db.ExecContext(ctx, q); err != nil {
		return domain.NewErrEngine(q, err.Error())
	}
	drop := fmt.Sprintf("DROP TABLE %s", quoteIdent(table))
	if _, err := e.db.ExecContext(ctx, drop); err != nil {
		return domain.NewErrEngine(drop, err.Error())
	}
	rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tmp), quoteIdent(table))
	if _, err := e.db.ExecContext(ctx, rename); err != nil {
		return domain.NewErrEngine(rename, err.Error())
	}
	return nil
}

func joinQuoted(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return join(quoted, ", ")
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

func sqliteTypeToDomain(t string) string {
	switch t {
	case "INTEGER":
		return "int64"
	case "REAL":
		return "float64"
	case "BOOLEAN":
		return "bool"
	default:
		return "string"
	}
}

func domainTypeToSQLite(t string) string {
	switch t {
	case "int64":
		return "INTEGER"
	case "float64":
		return "REAL"
	case "bool":
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
