package domain

import "time"

// CommandType is the closed set of command families recognized by the
// command executor.
type CommandType string

const (
	CmdEditCell        CommandType = "edit:cell"
	CmdEditBatch       CommandType = "edit:batch"
	CmdTransform       CommandType = "transform" // parameterized by Transform.Name
	CmdScrubBatch      CommandType = "scrub:batch"
	CmdStandardizeApply CommandType = "standardize:apply"
	CmdMergeApply       CommandType = "merge:apply"
	CmdInsertRow        CommandType = "insert_row"
	CmdDeleteRow        CommandType = "delete_row"
	CmdCombineStack     CommandType = "combine:stack"
	CmdCombineJoin      CommandType = "combine:join"
	CmdRenameColumn     CommandType = "rename_column"
	CmdReorderColumns   CommandType = "reorder_columns"
)

// Expensive reports whether a command mutates the live table wholesale
// rather than through a cheap, directly-invertible edit. Expensive
// commands are the ones that put the table at risk of an unrecoverable
// bulk change if something goes wrong mid-apply.
func (t CommandType) Expensive() bool {
	switch t {
	case CmdEditCell, CmdEditBatch, CmdInsertRow, CmdDeleteRow,
		CmdRenameColumn, CmdReorderColumns:
		return false
	default:
		return true
	}
}

// NeedsPreSnapshot reports whether the executor must export a
// pre-command snapshot of cmd.TableID before applying. Every expensive
// command needs one EXCEPT combine:stack/combine:join: those
// never mutate their source tables and produce a brand-new result table
// that does not exist yet before the command runs, so there is nothing
// to snapshot. Their undo instead deletes the produced table.
func (t CommandType) NeedsPreSnapshot() bool {
	if !t.Expensive() {
		return false
	}
	switch t {
	case CmdCombineStack, CmdCombineJoin:
		return false
	default:
		return true
	}
}

// ProducesNewTable reports whether the command's undo is "delete the
// table it produced" rather than a snapshot restore or cheap inverse.
func (t CommandType) ProducesNewTable() bool {
	return t == CmdCombineStack || t == CmdCombineJoin
}

// CellChange is one cell-level change, used by edit:batch, changelog
// cell_edit entries and audit type-B entries.
type CellChange struct {
	CSID   int64       `json:"cs_id"`
	Column string      `json:"column"`
	Old    interface{} `json:"old"`
	New    interface{} `json:"new"`
}

// Command is one atomic mutation, as recorded on a table's timeline.
type Command struct {
	CommandID   string      `json:"command_id"`
	TableID     string      `json:"table_id"`
	Type        CommandType `json:"command_type"`
	Params      interface{} `json:"params"`
	CreatedAt   time.Time   `json:"created_at"`

	// Derived/cached fields needed for undo and audit, populated by the
	// executor at apply time.
	AffectedCSIDs []int64      `json:"affected_cs_ids,omitempty"`
	AffectedCols  []string     `json:"affected_columns,omitempty"`
	CellChanges   []CellChange `json:"cell_changes,omitempty"`
	RowsAffected  int64        `json:"rows_affected"`
	AuditEntryID  string       `json:"audit_entry_id"`

	// PreSnapshotID is populated for expensive commands: the snapshot of
	// the table immediately before this command applied.
	PreSnapshotID string `json:"pre_snapshot_id,omitempty"`

	// Inverse carries enough information to build the inverse command for
	// cheap commands (edit:cell, edit:batch, insert_row, delete_row,
	// rename_column, reorder_columns) without a snapshot restore.
	Inverse interface{} `json:"inverse,omitempty"`
}

// Timeline is the per-table linear command history.
type Timeline struct {
	TableID            string     `json:"table_id"`
	Commands           []*Command `json:"commands"`
	CurrentPosition    int        `json:"current_position"` // -1..len-1
	OriginalSnapshotID string     `json:"original_snapshot_id"`
}

// NewTimeline creates an empty timeline pinned to the given original-import
// snapshot.
func NewTimeline(tableID, originalSnapshotID string) *Timeline {
	return &Timeline{
		TableID:            tableID,
		Commands:           nil,
		CurrentPosition:    -1,
		OriginalSnapshotID: originalSnapshotID,
	}
}

// Append discards any undone tail and pushes c, advancing CurrentPosition.
// The caller is expected to have already confirmed the redo-branch discard
// with the user; the core itself never re-asks.
func (tl *Timeline) Append(c *Command) {
	if tl.CurrentPosition < len(tl.Commands)-1 {
		tl.Commands = tl.Commands[:tl.CurrentPosition+1]
	}
	tl.Commands = append(tl.Commands, c)
	tl.CurrentPosition++
}

// Current returns the command at CurrentPosition, or nil if the timeline is
// at the original-import state.
func (tl *Timeline) Current() *Command {
	if tl.CurrentPosition < 0 || tl.CurrentPosition >= len(tl.Commands) {
		return nil
	}
	return tl.Commands[tl.CurrentPosition]
}

// CanUndo reports whether there is a command to undo.
func (tl *Timeline) CanUndo() bool { return tl.CurrentPosition >= 0 }

// CanRedo reports whether there is an undone command to redo.
func (tl *Timeline) CanRedo() bool { return tl.CurrentPosition < len(tl.Commands)-1 }
