package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorConstructors_MessagesCarryContext(t *testing.T) {
	assert.Contains(t, NewErrEngine("SELECT 1", "boom").Error(), "boom")
	assert.Contains(t, NewErrIO("/tmp/x", "disk full").Error(), "/tmp/x")
	assert.Contains(t, NewErrLockContention("table:foo").Error(), "table:foo")
	assert.Contains(t, NewErrCorruptSnapshot("snap-1", "short shard").Error(), "snap-1")
	assert.Contains(t, NewErrMissingSnapshot("snap-2").Error(), "snap-2")
	assert.Contains(t, NewErrCappedAudit("audit-1", 60000).Error(), "60000")
	assert.Contains(t, NewErrValidation("combine:stack", "schema mismatch").Error(), "schema mismatch")
	assert.Contains(t, NewErrTableNotFound("missing_table").Error(), "missing_table")
}

func TestErrorConstructors_AreDistinctTypes(t *testing.T) {
	var err error = NewErrTableNotFound("t")
	_, ok := err.(*ErrTableNotFound)
	assert.True(t, ok)

	_, ok = err.(*ErrEngine)
	assert.False(t, ok)
}
