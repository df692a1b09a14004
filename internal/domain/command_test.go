package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandType_Expensive(t *testing.T) {
	cheap := []CommandType{CmdEditCell, CmdEditBatch, CmdInsertRow, CmdDeleteRow, CmdRenameColumn, CmdReorderColumns}
	for _, c := range cheap {
		assert.Falsef(t, c.Expensive(), "%s should be cheap", c)
	}

	expensive := []CommandType{CmdTransform, CmdScrubBatch, CmdStandardizeApply, CmdMergeApply, CmdCombineStack, CmdCombineJoin}
	for _, c := range expensive {
		assert.Truef(t, c.Expensive(), "%s should be expensive", c)
	}
}

func TestCommandType_NeedsPreSnapshot(t *testing.T) {
	assert.True(t, CmdTransform.NeedsPreSnapshot())
	assert.True(t, CmdScrubBatch.NeedsPreSnapshot())
	assert.True(t, CmdStandardizeApply.NeedsPreSnapshot())
	assert.True(t, CmdMergeApply.NeedsPreSnapshot())

	// combine commands are expensive but never pre-snapshotted: they
	// produce a brand-new table rather than mutating an existing one.
	assert.False(t, CmdCombineStack.NeedsPreSnapshot())
	assert.False(t, CmdCombineJoin.NeedsPreSnapshot())

	// cheap commands never need one either.
	assert.False(t, CmdEditCell.NeedsPreSnapshot())
	assert.False(t, CmdInsertRow.NeedsPreSnapshot())
}

func TestCommandType_ProducesNewTable(t *testing.T) {
	assert.True(t, CmdCombineStack.ProducesNewTable())
	assert.True(t, CmdCombineJoin.ProducesNewTable())
	assert.False(t, CmdTransform.ProducesNewTable())
	assert.False(t, CmdEditCell.ProducesNewTable())
}

func TestTimeline_AppendDiscardsRedoTail(t *testing.T) {
	tl := NewTimeline("t1", "snap-original")
	assert.Equal(t, -1, tl.CurrentPosition)
	assert.Nil(t, tl.Current())

	c1 := &Command{CommandID: "c1", Type: CmdEditCell}
	c2 := &Command{CommandID: "c2", Type: CmdEditCell}
	c3 := &Command{CommandID: "c3", Type: CmdEditCell}
	tl.Append(c1)
	tl.Append(c2)
	tl.Append(c3)
	assert.Equal(t, 2, tl.CurrentPosition)
	assert.Equal(t, c3, tl.Current())

	// undo twice, leaving c2 and c3 as a redo tail
	tl.CurrentPosition--
	tl.CurrentPosition--
	assert.Equal(t, c1, tl.Current())
	assert.True(t, tl.CanRedo())

	// appending a new command must discard c2/c3 rather than splice them in
	c4 := &Command{CommandID: "c4", Type: CmdEditCell}
	tl.Append(c4)
	assert.Len(t, tl.Commands, 2)
	assert.Equal(t, c4, tl.Current())
	assert.False(t, tl.CanRedo())
}

func TestTimeline_CanUndoCanRedo(t *testing.T) {
	tl := NewTimeline("t1", "snap-original")
	assert.False(t, tl.CanUndo())
	assert.False(t, tl.CanRedo())

	tl.Append(&Command{CommandID: "c1"})
	assert.True(t, tl.CanUndo())
	assert.False(t, tl.CanRedo())

	tl.CurrentPosition--
	assert.False(t, tl.CanUndo())
	assert.True(t, tl.CanRedo())
}
