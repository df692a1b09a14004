package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/cleanslate/core/internal/combine"
	"github.com/cleanslate/core/internal/domain"
)

// apply runs cmd's forward action against the live table and populates
// its derived fields (AffectedCSIDs, CellChanges, RowsAffected, Inverse).
// It never touches the timeline; Execute does that once apply succeeds.
func (x *Executor) apply(ctx context.Context, cmd *domain.Command) error {
	switch cmd.Type {
	case domain.CmdEditCell:
		return x.applyEditCell(ctx, cmd)
	case domain.CmdEditBatch:
		return x.applyEditBatch(ctx, cmd)
	case domain.CmdInsertRow:
		return x.applyInsertRow(ctx, cmd)
	case domain.CmdDeleteRow:
		return x.applyDeleteRow(ctx, cmd)
	case domain.CmdRenameColumn:
		return x.applyRenameColumn(ctx, cmd)
	case domain.CmdReorderColumns:
		return x.applyReorderColumns(ctx, cmd)
	case domain.CmdTransform:
		return x.applyTransform(ctx, cmd)
	case domain.CmdScrubBatch:
		return x.applyScrubBatch(ctx, cmd)
	case domain.CmdStandardizeApply:
		return x.applyStandardizeApply(ctx, cmd)
	case domain.CmdMergeApply:
		return x.applyMergeApply(ctx, cmd)
	case domain.CmdCombineStack:
		return x.applyCombineStack(ctx, cmd)
	case domain.CmdCombineJoin:
		return x.applyCombineJoin(ctx, cmd)
	default:
		return domain.NewErrValidation("execute", fmt.Sprintf("unrecognized command type %q", cmd.Type))
	}
}

func (x *Executor) applyEditCell(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(EditCellParams)
	if !ok {
		return domain.NewErrValidation("edit:cell", "bad params")
	}
	old, err := x.readCell(ctx, cmd.TableID, p.CSID, p.Column)
	if err != nil {
		return err
	}
	if err := x.eng.UpdateCell(ctx, cmd.TableID, p.CSID, p.Column, p.Value); err != nil {
		return err
	}
	cmd.AffectedCSIDs = []int64{p.CSID}
	cmd.AffectedCols = []string{p.Column}
	cmd.CellChanges = []domain.CellChange{{CSID: p.CSID, Column: p.Column, Old: old, New: p.Value}}
	cmd.RowsAffected = 1
	cmd.Inverse = EditCellParams{CSID: p.CSID, Column: p.Column, Value: old}
	x.putCellChangeDetail(cmd.AuditEntryID, cmd.CellChanges)
	return nil
}

func (x *Executor) applyEditBatch(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(EditBatchParams)
	if !ok {
		return domain.NewErrValidation("edit:batch", "bad params")
	}
	inverse := make([]domain.CellChange, 0, len(p.Changes))
	affected := make(map[int64]bool, len(p.Changes))
	cols := make(map[string]bool, len(p.Changes))
	for _, c := range p.Changes {
		old, err := x.readCell(ctx, cmd.TableID, c.CSID, c.Column)
		if err != nil {
			return err
		}
		if err := x.eng.UpdateCell(ctx, cmd.TableID, c.CSID, c.Column, c.New); err != nil {
			return err
		}
		inverse = append(inverse, domain.CellChange{CSID: c.CSID, Column: c.Column, Old: c.New, New: old})
		affected[c.CSID] = true
		cols[c.Column] = true
	}
	cmd.CellChanges = p.Changes
	cmd.RowsAffected = int64(len(affected))
	for id := range affected {
		cmd.AffectedCSIDs = append(cmd.AffectedCSIDs, id)
	}
	for c := range cols {
		cmd.AffectedCols = append(cmd.AffectedCols, c)
	}
	cmd.Inverse = EditBatchParams{Changes: inverse}
	x.putCellChangeDetail(cmd.AuditEntryID, p.Changes)
	return nil
}

// putCellChangeDetail records one row-level detail row per cell change,
// matching the RowIndex/Column/PreviousValue/NewValue layout the audit
// export uses for regular transforms and manual edits alike.
func (x *Executor) putCellChangeDetail(auditEntryID string, changes []domain.CellChange) {
	if x.audits == nil || len(changes) == 0 {
		return
	}
	detail := make([]map[string]interface{}, len(changes))
	for i, c := range changes {
		detail[i] = map[string]interface{}{
			"row_index":      c.CSID,
			"column":         c.Column,
			"previous_value": c.Old,
			"new_value":      c.New,
		}
	}
	if err := x.audits.PutRows(auditEntryID, detail); err != nil {
		x.log.Error("command", "cell-edit audit detail write failed: "+err.Error())
	}
}

func (x *Executor) readCell(ctx context.Context, table string, csID int64, column string) (interface{}, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", quoteIdent(column), quoteIdent(table), domain.CSIDColumn)
	rows, err := x.eng.Query(ctx, q, csID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanRows(rows, []string{column})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.NewErrValidation("edit:cell", fmt.Sprintf("no row with cs_id=%d", csID))
	}
	return out[0][column], nil
}

func (x *Executor) applyInsertRow(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(InsertRowParams)
	if !ok {
		return domain.NewErrValidation("insert_row", "bad params")
	}
	cols, err := x.eng.DescribeColumns(ctx, cmd.TableID)
	if err != nil {
		return err
	}
	csID, originID, err := x.eng.InsertRow(ctx, cmd.TableID, cols, p.Values)
	if err != nil {
		return err
	}
	cmd.AffectedCSIDs = []int64{csID}
	cmd.RowsAffected = 1
	colNames := make([]string, len(cols))
	for i, c := range cols {
		colNames[i] = c.Name
	}
	row := domain.Row{}
	for k, v := range p.Values {
		row[k] = v
	}
	row[domain.CSIDColumn] = csID
	row[domain.OriginIDColumn] = originID
	cmd.Params = InsertRowParams{Values: row, InsertAfterCSID: p.InsertAfterCSID}
	cmd.Inverse = DeleteRowParams{CSIDs: []int64{csID}}
	return nil
}

func (x *Executor) applyDeleteRow(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(DeleteRowParams)
	if !ok {
		return domain.NewErrValidation("delete_row", "bad params")
	}
	cols, err := x.eng.DescribeColumns(ctx, cmd.TableID)
	if err != nil {
		return err
	}
	colNames := append([]string{domain.CSIDColumn, domain.OriginIDColumn}, colNamesOf(cols)...)
	placeholders := make([]string, len(p.CSIDs))
	args := make([]interface{}, len(p.CSIDs))
	for i, id := range p.CSIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)", joinIdents(colNames), quoteIdent(cmd.TableID), domain.CSIDColumn, strings.Join(placeholders, ", "))
	rows, err := x.eng.Query(ctx, q, args...)
	if err != nil {
		return err
	}
	deleted, err := scanRows(rows, colNames)
	rows.Close()
	if err != nil {
		return err
	}

	if err := x.eng.DeleteByCSIDs(ctx, cmd.TableID, p.CSIDs); err != nil {
		return err
	}
	cmd.AffectedCSIDs = p.CSIDs
	cmd.RowsAffected = int64(len(deleted))
	cmd.Inverse = deleted // consumed directly by reinsertDeletedRows on undo/changelog replay
	return nil
}

func colNamesOf(cols []domain.ColumnInfo) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func (x *Executor) applyRenameColumn(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(RenameColumnParams)
	if !ok {
		return domain.NewErrValidation("rename_column", "bad params")
	}
	if err := x.eng.RenameColumn(ctx, cmd.TableID, p.OldName, p.NewName); err != nil {
		return err
	}
	cmd.AffectedCols = []string{p.NewName}
	cmd.Inverse = RenameColumnParams{OldName: p.NewName, NewName: p.OldName}
	return nil
}

func (x *Executor) applyReorderColumns(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(ReorderColumnsParams)
	if !ok {
		return domain.NewErrValidation("reorder_columns", "bad params")
	}
	cols, err := x.eng.DescribeColumns(ctx, cmd.TableID)
	if err != nil {
		return err
	}
	prevOrder := colNamesOf(cols)
	if err := x.eng.ReorderColumns(ctx, cmd.TableID, p.NewOrder); err != nil {
		return err
	}
	cmd.AffectedCols = p.NewOrder
	cmd.Inverse = ReorderColumnsParams{NewOrder: prevOrder}
	return nil
}

func (x *Executor) applyTransform(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(TransformParams)
	if !ok {
		return domain.NewErrValidation("transform", "bad params")
	}
	before, err := x.readColumnByCSID(ctx, cmd.TableID, p.TargetColumn)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("UPDATE %s SET %s = %s", quoteIdent(cmd.TableID), quoteIdent(p.TargetColumn), p.Expr)
	res, err := x.eng.Exec(ctx, q)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	cmd.RowsAffected = n
	cmd.AffectedCols = []string{p.TargetColumn}

	after, err := x.readColumnByCSID(ctx, cmd.TableID, p.TargetColumn)
	if err == nil {
		x.putColumnDiffDetail(cmd.AuditEntryID, p.TargetColumn, before, after)
	}
	return nil
}

func (x *Executor) applyScrubBatch(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(ScrubBatchParams)
	if !ok {
		return domain.NewErrValidation("scrub:batch", "bad params")
	}
	sets := make([]string, 0, len(p.ColumnExprs))
	cols := make([]string, 0, len(p.ColumnExprs))
	before := make(map[string]map[int64]interface{}, len(p.ColumnExprs))
	for col, expr := range p.ColumnExprs {
		sets = append(sets, fmt.Sprintf("%s = %s", quoteIdent(col), expr))
		cols = append(cols, col)
		if b, err := x.readColumnByCSID(ctx, cmd.TableID, col); err == nil {
			before[col] = b
		}
	}
	q := fmt.Sprintf("UPDATE %s SET %s", quoteIdent(cmd.TableID), strings.Join(sets, ", "))
	res, err := x.eng.Exec(ctx, q)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	cmd.RowsAffected = n
	cmd.AffectedCols = cols

	for _, col := range cols {
		b, ok := before[col]
		if !ok {
			continue
		}
		after, err := x.readColumnByCSID(ctx, cmd.TableID, col)
		if err != nil {
			continue
		}
		x.putColumnDiffDetail(cmd.AuditEntryID, col, b, after)
	}
	return nil
}

// readColumnByCSID reads one column of table for every row, keyed by
// cs_id, used to diff a bulk UPDATE's before/after state for audit detail.
func (x *Executor) readColumnByCSID(ctx context.Context, table, column string) (map[int64]interface{}, error) {
	q := fmt.Sprintf("SELECT %s, %s FROM %s", quoteIdent(domain.CSIDColumn), quoteIdent(column), quoteIdent(table))
	rows, err := x.eng.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scanned, err := scanRows(rows, []string{domain.CSIDColumn, column})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]interface{}, len(scanned))
	for _, r := range scanned {
		csid, ok := r[domain.CSIDColumn].(int64)
		if !ok {
			continue
		}
		out[csid] = r[column]
	}
	return out, nil
}

// putColumnDiffDetail records one detail row per cs_id whose column value
// changed between before and after, the same RowIndex/Column/
// PreviousValue/NewValue layout manual cell edits use.
func (x *Executor) putColumnDiffDetail(auditEntryID, column string, before, after map[int64]interface{}) {
	if x.audits == nil {
		return
	}
	var detail []map[string]interface{}
	for csid, newVal := range after {
		oldVal := before[csid]
		if fmt.Sprint(oldVal) == fmt.Sprint(newVal) {
			continue
		}
		detail = append(detail, map[string]interface{}{
			"row_index":      csid,
			"column":         column,
			"previous_value": oldVal,
			"new_value":      newVal,
		})
	}
	if len(detail) == 0 {
		return
	}
	if err := x.audits.PutRows(auditEntryID, detail); err != nil {
		x.log.Error("command", "transform audit detail write failed: "+err.Error())
	}
}

func (x *Executor) applyStandardizeApply(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(StandardizeApplyParams)
	if !ok {
		return domain.NewErrValidation("standardize:apply", "bad params")
	}

	counts := make(map[string]int64, len(p.Mapping))
	for from := range p.Mapping {
		n, err := x.countColumnEquals(ctx, cmd.TableID, p.Column, from)
		if err != nil {
			return err
		}
		counts[from] = n
	}

	var caseExpr strings.Builder
	caseExpr.WriteString("CASE ")
	caseExpr.WriteString(quoteIdent(p.Column))
	args := make([]interface{}, 0, len(p.Mapping)*2)
	for from, to := range p.Mapping {
		caseExpr.WriteString(" WHEN ? THEN ?")
		args = append(args, from, to)
	}
	caseExpr.WriteString(" ELSE ")
	caseExpr.WriteString(quoteIdent(p.Column))
	caseExpr.WriteString(" END")

	var inList strings.Builder
	for from := range p.Mapping {
		if inList.Len() > 0 {
			inList.WriteString(", ")
		}
		inList.WriteString("?")
		args = append(args, from)
	}

	q := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IN (%s)", quoteIdent(cmd.TableID), quoteIdent(p.Column), caseExpr.String(), quoteIdent(p.Column), inList.String())
	res, err := x.eng.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	cmd.RowsAffected = n
	cmd.AffectedCols = []string{p.Column}

	var detail []map[string]interface{}
	for from, to := range p.Mapping {
		if counts[from] == 0 {
			continue
		}
		detail = append(detail, map[string]interface{}{
			"original_value":  from,
			"standardized_to": to,
			"rows_changed":    counts[from],
		})
	}
	if x.audits != nil && len(detail) > 0 {
		if err := x.audits.PutRows(cmd.AuditEntryID, detail); err != nil {
			x.log.Error("command", "standardize audit detail write failed: "+err.Error())
		}
	}
	return nil
}

// countColumnEquals returns how many rows of table have column equal to
// value, used to record per-mapping RowsChanged before the UPDATE that
// standardize:apply runs collapses that information.
func (x *Executor) countColumnEquals(ctx context.Context, table, column string, value interface{}) (int64, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", quoteIdent(table), quoteIdent(column))
	rows, err := x.eng.Query(ctx, q, value)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func (x *Executor) applyMergeApply(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(MergeApplyParams)
	if !ok {
		return domain.NewErrValidation("merge:apply", "bad params")
	}
	var toDelete []int64
	var detail []map[string]interface{}
	for i, pair := range p.Pairs {
		if pair.Status != domain.MatchMerged {
			continue
		}
		keptCSID, deletedCSID := pair.RowACSID, pair.RowBCSID
		if pair.KeepRow == domain.KeepB {
			keptCSID, deletedCSID = pair.RowBCSID, pair.RowACSID
		}
		toDelete = append(toDelete, deletedCSID)

		keptRow, err := x.readRowByCSID(ctx, cmd.TableID, keptCSID)
		if err != nil {
			return err
		}
		deletedRow, err := x.readRowByCSID(ctx, cmd.TableID, deletedCSID)
		if err != nil {
			return err
		}
		detail = append(detail, map[string]interface{}{
			"pair_index":   i,
			"similarity":   pair.Similarity,
			"match_column": pair.MatchColumn,
			"kept_data":    keptRow,
			"deleted_data": deletedRow,
		})
	}
	if err := x.eng.DeleteByCSIDs(ctx, cmd.TableID, toDelete); err != nil {
		return err
	}
	cmd.AffectedCSIDs = toDelete
	cmd.RowsAffected = int64(len(toDelete))
	if x.audits != nil && len(detail) > 0 {
		if err := x.audits.PutRows(cmd.AuditEntryID, detail); err != nil {
			x.log.Error("command", "merge audit detail write failed: "+err.Error())
		}
	}
	return nil
}

// readRowByCSID fetches one full row (every column, identity columns
// included) by its cs_id.
func (x *Executor) readRowByCSID(ctx context.Context, table string, csID int64) (domain.Row, error) {
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", quoteIdent(table), domain.CSIDColumn)
	rows, err := x.eng.Query(ctx, q, csID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanRows(rows, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.NewErrValidation("merge:apply", fmt.Sprintf("no row with cs_id=%d", csID))
	}
	return out[0], nil
}

func (x *Executor) applyCombineStack(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(CombineStackParams)
	if !ok {
		return domain.NewErrValidation("combine:stack", "bad params")
	}
	n, err := combine.Stack(ctx, x.eng, p.SourceTables, p.ResultTable)
	if err != nil {
		return err
	}
	cmd.RowsAffected = n
	x.timelines.getOrCreate(p.ResultTable, "")
	return nil
}

func (x *Executor) applyCombineJoin(ctx context.Context, cmd *domain.Command) error {
	p, ok := cmd.Params.(CombineJoinParams)
	if !ok {
		return domain.NewErrValidation("combine:join", "bad params")
	}
	n, err := combine.Join(ctx, x.eng, combine.JoinSpec{
		LeftTable:   p.LeftTable,
		RightTable:  p.RightTable,
		KeyColumn:   p.KeyColumn,
		JoinType:    p.JoinType,
		ResultTable: p.ResultTable,
	})
	if err != nil {
		return err
	}
	cmd.RowsAffected = n
	x.timelines.getOrCreate(p.ResultTable, "")
	return nil
}

// appendChangelog writes a changelog entry for cheap commands.
func (x *Executor) appendChangelog(cmd *domain.Command) error {
	switch cmd.Type {
	case domain.CmdEditCell:
		c := cmd.CellChanges[0]
		return x.changelog.Append(domain.ChangelogEntry{
			Type: domain.ChangeCellEdit, TableID: cmd.TableID, TsMs: cmd.CreatedAt.UnixMilli(),
			RowID: fmt.Sprint(c.CSID), Column: c.Column, OldVal: c.Old, NewVal: c.New,
		})
	case domain.CmdEditBatch:
		for _, c := range cmd.CellChanges {
			if err := x.changelog.Append(domain.ChangelogEntry{
				Type: domain.ChangeCellEdit, TableID: cmd.TableID, TsMs: cmd.CreatedAt.UnixMilli(),
				RowID: fmt.Sprint(c.CSID), Column: c.Column, OldVal: c.Old, NewVal: c.New,
			}); err != nil {
				return err
			}
		}
		return nil
	case domain.CmdInsertRow:
		p := cmd.Params.(InsertRowParams)
		csID, _ := p.Values[domain.CSIDColumn].(int64)
		originID, _ := p.Values[domain.OriginIDColumn].(string)
		names := make([]string, 0, len(p.Values))
		for k := range p.Values {
			if k == domain.CSIDColumn || k == domain.OriginIDColumn {
				continue
			}
			names = append(names, k)
		}
		return x.changelog.Append(domain.ChangelogEntry{
			Type: domain.ChangeInsertRow, TableID: cmd.TableID, TsMs: cmd.CreatedAt.UnixMilli(),
			CSID: csID, OriginID: originID, InsertAfterCSID: p.InsertAfterCSID, ColumnNames: names,
		})
	case domain.CmdDeleteRow:
		rows, _ := cmd.Inverse.([]domain.Row)
		return x.changelog.Append(domain.ChangelogEntry{
			Type: domain.ChangeDeleteRow, TableID: cmd.TableID, TsMs: cmd.CreatedAt.UnixMilli(),
			CSIDs: cmd.AffectedCSIDs, DeletedRows: rows,
		})
	default:
		return nil
	}
}
