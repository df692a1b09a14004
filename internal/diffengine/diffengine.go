// Package diffengine materializes row- and column-level diffs between two
// tables: two-table mode aligned by user-chosen key columns, or
// compare-with-original mode aligned by _cs_id (identity survives
// transforms, so no key columns are needed). The result is written as an
// ordinary table so the existing keyset pagination machinery
// (internal/pagination) can page it like any other table.
package diffengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
)

// Source is a fully-read, order-independent table side: its rows and the
// schema they came from. Both two-table and compare-with-original mode
// reduce to this shape before alignment; the caller decides whether rows
// come from a live table (SQL) or a frozen snapshot (Chunk Manager).
type Source struct {
	Columns []domain.ColumnInfo
	Rows    []domain.Row
}

// ReadLiveSource reads every row of table through the engine, for use as
// either side of a two-table diff.
func ReadLiveSource(ctx context.Context, eng *engine.Engine, table string) (*Source, error) {
	cols, err := eng.DescribeColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	selectCols := append([]string{quoteIdent(domain.CSIDColumn), quoteIdent(domain.OriginIDColumn)}, quotedNames(cols)...)
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectCols, ", "), quoteIdent(table))
	rows, err := eng.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	return &Source{Columns: cols, Rows: scanned}, nil
}

// Result is everything a diff view needs: the materialized table's name,
// row count, and the A-centric column perspective.
type Result struct {
	TableName  string
	RowCount   int64
	Perspective domain.ColumnPerspective
}

// MaterializeTwoTable aligns a and b by keyColumns and writes the result to
// a fresh `_diff_<uuid>` table in eng.
func MaterializeTwoTable(ctx context.Context, eng *engine.Engine, a, b *Source, keyColumns []string) (*Result, error) {
	return materialize(ctx, eng, a, b, func(r domain.Row) string { return compositeKey(r, keyColumns) })
}

// MaterializeCompareOriginal aligns a (the original) and b (the current
// live table) by _cs_id, since identity is preserved across every
// transform.
func MaterializeCompareOriginal(ctx context.Context, eng *engine.Engine, a, b *Source) (*Result, error) {
	return materialize(ctx, eng, a, b, func(r domain.Row) string { return fmt.Sprintf("%v", r[domain.CSIDColumn]) })
}

func materialize(ctx context.Context, eng *engine.Engine, a, b *Source, keyFn func(domain.Row) string) (*Result, error) {
	colsA := map[string]bool{}
	for _, c := range a.Columns {
		colsA[c.Name] = true
	}
	colsB := map[string]bool{}
	for _, c := range b.Columns {
		colsB[c.Name] = true
	}
	perspective := domain.ColumnPerspective{}
	union := []string{}
	seen := map[string]bool{}
	for _, c := range a.Columns {
		union = append(union, c.Name)
		seen[c.Name] = true
	}
	for _, c := range b.Columns {
		if !seen[c.Name] {
			union = append(union, c.Name)
			seen[c.Name] = true
		}
	}
	for _, name := range union {
		if colsA[name] && !colsB[name] {
			perspective.NewColumns = append(perspective.NewColumns, name)
		}
		if colsB[name] && !colsA[name] {
			perspective.RemovedColumns = append(perspective.RemovedColumns, name)
		}
	}

	byKeyA := map[string]domain.Row{}
	orderA := []string{}
	for _, r := range a.Rows {
		k := keyFn(r)
		byKeyA[k] = r
		orderA = append(orderA, k)
	}
	byKeyB := map[string]domain.Row{}
	orderB := []string{}
	bRowNum := map[string]int64{}
	for i, r := range b.Rows {
		k := keyFn(r)
		byKeyB[k] = r
		orderB = append(orderB, k)
		bRowNum[k] = int64(i + 1)
	}

	var diffRows []domain.DiffRow
	visited := map[string]bool{}
	sortKey := int64(0)

	for _, k := range orderA {
		if visited[k] {
			continue
		}
		visited[k] = true
		rowA := byKeyA[k]
		rowB, inB := byKeyB[k]

		status := domain.DiffRemoved
		var rowNum *int64
		if inB {
			if n, ok := bRowNum[k]; ok {
				rowNum = &n
			}
			status = domain.DiffUnchanged
			for _, col := range union {
				if !colsA[col] || !colsB[col] {
					continue
				}
				if !valuesEqual(rowA[col], rowB[col]) {
					status = domain.DiffModified
					break
				}
			}
		}
		if status == domain.DiffUnchanged {
			continue
		}
		sortKey++
		diffRows = append(diffRows, buildDiffRow(sortKey, k, status, rowNum, union, rowA, rowB, inB))
	}

	for _, k := range orderB {
		if visited[k] {
			continue
		}
		visited[k] = true
		sortKey++
		n := bRowNum[k]
		diffRows = append(diffRows, buildDiffRow(sortKey, k, domain.DiffAdded, &n, union, domain.Row{}, byKeyB[k], true))
	}

	resultTable := "_diff_" + uuid.NewString()
	resultCols := diffTableColumns(union)
	if err := eng.CreateTable(ctx, resultTable, resultCols); err != nil {
		return nil, err
	}
	rows := make([]domain.Row, len(diffRows))
	for i, dr := range diffRows {
		rows[i] = diffRowToInsertable(dr)
	}
	if err := eng.InsertRows(ctx, resultTable, resultCols, rows); err != nil {
		return nil, err
	}

	return &Result{TableName: resultTable, RowCount: int64(len(diffRows)), Perspective: perspective}, nil
}

func buildDiffRow(sortKey int64, rowID string, status domain.DiffStatus, bRowNum *int64, union []string, rowA, rowB domain.Row, inB bool) domain.DiffRow {
	values := domain.Row{}
	for _, col := range union {
		if rowA != nil {
			if v, ok := rowA[col]; ok {
				values["a_"+col] = v
			}
		}
		if inB {
			if v, ok := rowB[col]; ok {
				values["b_"+col] = v
			}
		}
	}
	return domain.DiffRow{RowID: rowID, SortKey: sortKey, DiffStatus: status, BRowNum: bRowNum, Values: values}
}

func diffRowToInsertable(dr domain.DiffRow) domain.Row {
	row := domain.Row{
		"sort_key":    dr.SortKey,
		"row_id":      dr.RowID,
		"diff_status": string(dr.DiffStatus),
	}
	if dr.BRowNum != nil {
		row["b_row_num"] = *dr.BRowNum
	}
	for k, v := range dr.Values {
		row[k] = v
	}
	return row
}

func diffTableColumns(union []string) []domain.ColumnInfo {
	cols := []domain.ColumnInfo{
		{Name: "sort_key", Type: "int64"},
		{Name: "row_id", Type: "string"},
		{Name: "diff_status", Type: "string"},
		{Name: "b_row_num", Type: "int64", Nullable: true},
	}
	for _, c := range union {
		cols = append(cols, domain.ColumnInfo{Name: "a_" + c, Type: "string", Nullable: true})
		cols = append(cols, domain.ColumnInfo{Name: "b_" + c, Type: "string", Nullable: true})
	}
	return cols
}

// valuesEqual treats NULL and empty string identically, matching
// memory note on column-modified checks.
func valuesEqual(a, b interface{}) bool {
	na, nb := normalizeNil(a), normalizeNil(b)
	return fmt.Sprintf("%v", na) == fmt.Sprintf("%v", nb)
}

func normalizeNil(v interface{}) interface{} {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok && s == "" {
		return ""
	}
	return v
}

func compositeKey(r domain.Row, keyColumns []string) string {
	parts := make([]string, len(keyColumns))
	for i, k := range keyColumns {
		parts[i] = fmt.Sprintf("%v", r[k])
	}
	return strings.Join(parts, "\x1f")
}

func quotedNames(cols []domain.ColumnInfo) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c.Name)
	}
	return out
}

func quoteIdent(name string) string { return `"` + name + `"` }

// FetchPage reads limit rows of resultTable starting at offset, ordered by
// orderBy (defaulting to sort_key), an OFFSET-based fallback.
func FetchPage(ctx context.Context, eng *engine.Engine, resultTable string, offset, limit int64, orderBy string) ([]domain.DiffRow, error) {
	if orderBy == "" {
		orderBy = "sort_key"
	}
	q := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s ASC LIMIT ? OFFSET ?`, quoteIdent(resultTable), quoteIdent(orderBy))
	rows, err := eng.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	return toDiffRows(scanned), nil
}

// FetchPageKeyset reads limit rows of resultTable after (or before)
// afterSortKey in direction "forward"|"backward", returning the page and
// its first/last sort_key for the caller's next cursor.
func FetchPageKeyset(ctx context.Context, eng *engine.Engine, resultTable string, afterSortKey int64, direction string, limit int64) ([]domain.DiffRow, int64, int64, error) {
	op, order := ">", "ASC"
	if direction == "backward" {
		op, order = "<", "DESC"
	}
	q := fmt.Sprintf(`SELECT * FROM %s WHERE "sort_key" %s ? ORDER BY "sort_key" %s LIMIT ?`,
		quoteIdent(resultTable), op, order)
	rows, err := eng.Query(ctx, q, afterSortKey, limit)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return nil, 0, 0, err
	}
	diffRows := toDiffRows(scanned)
	if direction == "backward" {
		for i, j := 0, len(diffRows)-1; i < j; i, j = i+1, j-1 {
			diffRows[i], diffRows[j] = diffRows[j], diffRows[i]
		}
	}
	if len(diffRows) == 0 {
		return diffRows, 0, 0, nil
	}
	return diffRows, diffRows[0].SortKey, diffRows[len(diffRows)-1].SortKey, nil
}

// GetRowsWithColumnChanges returns the row_ids for which a_<column> and
// b_<column> differ, used by the column-filter UI.
func GetRowsWithColumnChanges(ctx context.Context, eng *engine.Engine, resultTable, column string) ([]string, error) {
	q := fmt.Sprintf(`SELECT "row_id" FROM %s WHERE COALESCE(%s, '') != COALESCE(%s, '')`,
		quoteIdent(resultTable), quoteIdent("a_"+column), quoteIdent("b_"+column))
	rows, err := eng.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(scanned))
	for _, r := range scanned {
		out = append(out, fmt.Sprintf("%v", r["row_id"]))
	}
	return out, nil
}

// Cleanup drops resultTable. No MCP tool and no startup step calls it; a
// diff result table stays in the engine until a caller drops it.
func Cleanup(ctx context.Context, eng *engine.Engine, resultTable string) error {
	return eng.DropTable(ctx, resultTable)
}

func toDiffRows(rows []domain.Row) []domain.DiffRow {
	out := make([]domain.DiffRow, 0, len(rows))
	for _, r := range rows {
		dr := domain.DiffRow{
			RowID:      fmt.Sprintf("%v", r["row_id"]),
			DiffStatus: domain.DiffStatus(fmt.Sprintf("%v", r["diff_status"])),
			Values:     domain.Row{},
		}
		if sk, ok := r["sort_key"]; ok {
			dr.SortKey = toInt64(sk)
		}
		if bn, ok := r["b_row_num"]; ok && bn != nil {
			n := toInt64(bn)
			dr.BRowNum = &n
		}
		for k, v := range r {
			if strings.HasPrefix(k, "a_") || strings.HasPrefix(k, "b_") {
				dr.Values[k] = v
			}
		}
		out = append(out, dr)
	}
	return out
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
