// Package combine implements stack (union-all) and join, the two
// table-producing operations. Neither mutates its inputs;
// both materialize a brand-new table with freshly assigned identity
// columns, reusing the Table Engine adapter's InsertRows identity
// assignment so the new table gets the same _cs_id/_cs_origin_id
// discipline as an import.
package combine

import (
	"context"
	"fmt"
	"strings"

	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
)

// ValidationResult reports a stack/join pre-flight failure per table,
// surfaced to the caller before any mutation.
type ValidationResult struct {
	OK              bool
	MissingByTable  map[string][]string
	DuplicateKeys   []string
}

// ValidateStack checks that every source table shares the same column
// set (the intersection requirement); columns missing from a given table
// relative to the union are reported against that table.
func ValidateStack(ctx context.Context, eng *engine.Engine, tables []string) (ValidationResult, []string, error) {
	schemas := make(map[string][]domain.ColumnInfo, len(tables))
	union := map[string]bool{}
	for _, t := range tables {
		cols, err := eng.DescribeColumns(ctx, t)
		if err != nil {
			return ValidationResult{}, nil, err
		}
		schemas[t] = cols
		for _, c := range cols {
			union[c.Name] = true
		}
	}

	missing := map[string][]string{}
	common := []string{}
	for name := range union {
		inAll := true
		for _, t := range tables {
			found := false
			for _, c := range schemas[t] {
				if c.Name == name {
					found = true
					break
				}
			}
			if !found {
				missing[t] = append(missing[t], name)
				inAll = false
			}
		}
		if inAll {
			common = append(common, name)
		}
	}

	return ValidationResult{OK: len(missing) == 0, MissingByTable: missing}, common, nil
}

// Stack produces resultTable as the union-all of every column common to
// all sourceTables, assigning it fresh identity columns. Returns the
// number of rows written.
func Stack(ctx context.Context, eng *engine.Engine, sourceTables []string, resultTable string) (int64, error) {
	_, common, err := ValidateStack(ctx, eng, sourceTables)
	if err != nil {
		return 0, err
	}
	if len(common) == 0 {
		return 0, domain.NewErrValidation("combine:stack", "no columns common to all source tables")
	}

	allCols, err := eng.DescribeColumns(ctx, sourceTables[0])
	if err != nil {
		return 0, err
	}
	commonCols := filterColumns(allCols, common)

	var rows []domain.Row
	for _, t := range sourceTables {
		selected, err := selectAll(ctx, eng, t, common)
		if err != nil {
			return 0, err
		}
		rows = append(rows, selected...)
	}

	if err := eng.DropTable(ctx, resultTable); err != nil {
		return 0, err
	}
	if err := eng.CreateTable(ctx, resultTable, commonCols); err != nil {
		return 0, err
	}
	if err := eng.InsertRows(ctx, resultTable, commonCols, rows); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// JoinSpec parameterizes Join.
type JoinSpec struct {
	LeftTable   string
	RightTable  string
	KeyColumn   string
	JoinType    string // inner|left|right|outer
	ResultTable string
}

// ValidateJoin reports duplicate key values on the left side, which make
// the join's row multiplication ambiguous to the caller.
func ValidateJoin(ctx context.Context, eng *engine.Engine, spec JoinSpec) (ValidationResult, error) {
	q := fmt.Sprintf("SELECT %s FROM %s", quoteIdent(spec.KeyColumn), quoteIdent(spec.LeftTable))
	rows, err := eng.Query(ctx, q)
	if err != nil {
		return ValidationResult{}, err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return ValidationResult{}, err
	}
	seen := map[string]bool{}
	var dupes []string
	for _, r := range scanned {
		key := fmt.Sprintf("%v", r[spec.KeyColumn])
		if seen[key] {
			dupes = append(dupes, key)
			continue
		}
		seen[key] = true
	}
	return ValidationResult{OK: len(dupes) == 0, DuplicateKeys: dupes}, nil
}

// Join produces resultTable from a SQL join of left and right on
// KeyColumn, assigning it fresh identity columns. sqlite (and thus
// modernc.org/sqlite) has no native RIGHT or FULL OUTER JOIN, so "right"
// is implemented by swapping operands and "outer" by a LEFT JOIN unioned
// with the right-only rows.
func Join(ctx context.Context, eng *engine.Engine, spec JoinSpec) (int64, error) {
	leftCols, err := eng.DescribeColumns(ctx, spec.LeftTable)
	if err != nil {
		return 0, err
	}
	rightCols, err := eng.DescribeColumns(ctx, spec.RightTable)
	if err != nil {
		return 0, err
	}

	resultCols := mergeJoinColumns(leftCols, rightCols, spec.KeyColumn)

	var rows []domain.Row
	switch strings.ToLower(spec.JoinType) {
	case "inner", "left":
		sqlJoin := "LEFT JOIN"
		if strings.ToLower(spec.JoinType) == "inner" {
			sqlJoin = "JOIN"
		}
		rows, err = joinQuery(ctx, eng, spec.LeftTable, spec.RightTable, spec.KeyColumn, sqlJoin, leftCols, rightCols, false)
	case "right":
		rows, err = joinQuery(ctx, eng, spec.RightTable, spec.LeftTable, spec.KeyColumn, "LEFT JOIN", rightCols, leftCols, true)
	case "outer":
		left, lerr := joinQuery(ctx, eng, spec.LeftTable, spec.RightTable, spec.KeyColumn, "LEFT JOIN", leftCols, rightCols, false)
		if lerr != nil {
			return 0, lerr
		}
		rightOnly, rerr := rightOnlyRows(ctx, eng, spec)
		if rerr != nil {
			return 0, rerr
		}
		rows = append(left, rightOnly...)
	default:
		return 0, domain.NewErrValidation("combine:join", "unknown join type "+spec.JoinType)
	}
	if err != nil {
		return 0, err
	}

	if err := eng.DropTable(ctx, spec.ResultTable); err != nil {
		return 0, err
	}
	if err := eng.CreateTable(ctx, spec.ResultTable, resultCols); err != nil {
		return 0, err
	}
	if err := eng.InsertRows(ctx, spec.ResultTable, resultCols, rows); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func joinQuery(ctx context.Context, eng *engine.Engine, primary, secondary, key, joinKind string, primaryCols, secondaryCols []domain.ColumnInfo, swapped bool) ([]domain.Row, error) {
	selectList := []string{}
	for _, c := range primaryCols {
		selectList = append(selectList, fmt.Sprintf("l.%s AS %s", quoteIdent(c.Name), quoteIdent("l_"+c.Name)))
	}
	for _, c := range secondaryCols {
		selectList = append(selectList, fmt.Sprintf("r.%s AS %s", quoteIdent(c.Name), quoteIdent("r_"+c.Name)))
	}
	q := fmt.Sprintf("SELECT %s FROM %s l %s %s r ON l.%s = r.%s",
		strings.Join(selectList, ", "), quoteIdent(primary), joinKind, quoteIdent(secondary), quoteIdent(key), quoteIdent(key))

	rows, err := eng.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scanned, err := engine.ScanRows(rows)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Row, 0, len(scanned))
	for _, sr := range scanned {
		row := domain.Row{}
		for _, c := range primaryCols {
			row[c.Name] = sr["l_"+c.Name]
		}
		for _, c := range secondaryCols {
			if _, exists := row[c.Name]; exists && c.Name != key {
				row["right_"+c.Name] = sr["r_"+c.Name]
				continue
			}
			row[c.Name] = sr["r_"+c.Name]
		}
		out = append(out, row)
	}
	return out, nil
}

func rightOnlyRows(ctx context.Context, eng *engine.Engine, spec JoinSpec) ([]domain.Row, error) {
	q := fmt.Sprintf("SELECT r.* FROM %s r LEFT JOIN %s l ON l.%s = r.%s WHERE l.%s IS NULL",
		quoteIdent(spec.RightTable), quoteIdent(spec.LeftTable), quoteIdent(spec.KeyColumn), quoteIdent(spec.KeyColumn), quoteIdent(spec.KeyColumn))
	rows, err := eng.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return engine.ScanRows(rows)
}

func mergeJoinColumns(left, right []domain.ColumnInfo, key string) []domain.ColumnInfo {
	out := append([]domain.ColumnInfo{}, left...)
	for _, c := range right {
		if c.Name == key {
			continue
		}
		out = append(out, c)
	}
	return out
}

func selectAll(ctx context.Context, eng *engine.Engine, table string, columns []string) ([]domain.Row, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(table))
	rows, err := eng.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return engine.ScanRows(rows)
}

func filterColumns(cols []domain.ColumnInfo, names []string) []domain.ColumnInfo {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	var out []domain.ColumnInfo
	for _, c := range cols {
		if want[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

func quoteIdent(name string) string { return `"` + name + `"` }
