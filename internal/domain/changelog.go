package domain

// ChangelogEntryType is the closed set of changelog JSONL record variants.
type ChangelogEntryType string

const (
	ChangeCellEdit   ChangelogEntryType = "cell_edit"
	ChangeInsertRow  ChangelogEntryType = "insert_row"
	ChangeDeleteRow  ChangelogEntryType = "delete_row"
)

// ChangelogEntry is one line of a table's changelogs/<tableID>.jsonl. Exactly one of the
// type-specific payloads is populated, selected by Type. Entries read back
// with no "type" field are normalized to ChangeCellEdit (legacy format).
type ChangelogEntry struct {
	Type    ChangelogEntryType `json:"type"`
	TableID string             `json:"tableId"`
	TsMs    int64              `json:"ts"`

	// cell_edit
	RowID  string      `json:"rowId,omitempty"`
	Column string      `json:"column,omitempty"`
	OldVal interface{} `json:"oldValue,omitempty"`
	NewVal interface{} `json:"newValue,omitempty"`

	// insert_row
	CSID            int64    `json:"csId,omitempty"`
	OriginID        string   `json:"originId,omitempty"`
	InsertAfterCSID *int64   `json:"insertAfterCsId,omitempty"`
	ColumnNames     []string `json:"columnNames,omitempty"`

	// delete_row
	CSIDs        []int64 `json:"csIds,omitempty"`
	DeletedRows  []Row   `json:"deletedRows,omitempty"`
}

// Normalize applies the legacy-entry rule: an entry with no Type is treated
// as cell_edit.
func (e *ChangelogEntry) Normalize() {
	if e.Type == "" {
		e.Type = ChangeCellEdit
	}
}
