package command

import "github.com/cleanslate/core/internal/domain"

// Param payload shapes for each domain.CommandType, assigned to
// domain.Command.Params by the caller and type-asserted by the executor's
// dispatch table. Keeping these as concrete structs (rather than a bag of
// interface{} key/value pairs) lets the executor build SQL without ad hoc
// parsing.

type EditCellParams struct {
	CSID   int64
	Column string
	Value  interface{}
}

type EditBatchParams struct {
	Changes []domain.CellChange
}

type InsertRowParams struct {
	Values          domain.Row
	InsertAfterCSID *int64
}

type DeleteRowParams struct {
	CSIDs []int64
}

type RenameColumnParams struct {
	OldName string
	NewName string
}

type ReorderColumnsParams struct {
	NewOrder []string
}

// TransformParams drives a deterministic column-wise transform (trim,
// upper/lower case, split, concat, calculate-age, ...). Expr is a SQL
// scalar expression over the source columns, validated by sqlguard as
// part of the UPDATE statement the executor builds around it.
type TransformParams struct {
	Name         string
	TargetColumn string
	Expr         string
}

// ScrubBatchParams applies a per-column obfuscation method. Method names
// are resolved by the caller (the recipe editor, out of scope here); the
// executor only needs the resulting SQL expression per column.
type ScrubBatchParams struct {
	ColumnExprs     map[string]string
	GenerateKeyMap  bool
}

// StandardizeApplyParams clusters-and-replaces values in one column from a
// user-confirmed mapping.
type StandardizeApplyParams struct {
	Column  string
	Mapping map[string]string
}

// MergeApplyParams applies accepted fuzzy-match pairs: the kept row
// survives, the other is deleted.
type MergeApplyParams struct {
	Pairs []domain.MatchPair
}

// CombineStackParams unions sourceTables into a new ResultTable. Callers
// must set the enclosing Command's TableID to ResultTable: that's the
// table the produced timeline is recorded against, and the one undo
// deletes (domain.CommandType.ProducesNewTable).
type CombineStackParams struct {
	SourceTables []string
	ResultTable  string
}

// CombineJoinParams joins LeftTable/RightTable into a new ResultTable.
// Same TableID convention as CombineStackParams.
type CombineJoinParams struct {
	LeftTable   string
	RightTable  string
	KeyColumn   string
	JoinType    string // inner|left|right|outer
	ResultTable string
}
