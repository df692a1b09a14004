package domain

// DiffStatus is the classification of one diff row.
type DiffStatus string

const (
	DiffAdded     DiffStatus = "added"
	DiffRemoved   DiffStatus = "removed"
	DiffModified  DiffStatus = "modified"
	DiffUnchanged DiffStatus = "unchanged"
)

// DiffRow is one row of a materialized diff result table.
type DiffRow struct {
	RowID      string     `json:"row_id"`
	SortKey    int64      `json:"sort_key"`
	DiffStatus DiffStatus `json:"diff_status"`
	BRowNum    *int64     `json:"b_row_num,omitempty"`
	// Values holds "a_<col>" and "b_<col>" entries for every column in the
	// union of both tables' schemas.
	Values Row `json:"values"`
}

// ColumnPerspective reports the engine-centric (A-centric) column
// difference labels. Callers invert these for user display:
// a column in B but not A is what the engine calls "removed" and the user
// calls "added".
type ColumnPerspective struct {
	NewColumns     []string // cols_A \ cols_B
	RemovedColumns []string // cols_B \ cols_A
}
