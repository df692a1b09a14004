package domain

import "fmt"

// The core distinguishes a closed set of error kinds so that the
// Command Executor can report a machine-readable kind alongside a
// human-readable message, and so rollback/retry policy can switch on type.

// ErrEngine wraps a failure from the embedded SQL engine. Fatal to the
// current command; always triggers rollback.
type ErrEngine struct {
	SQL    string
	Reason string
}

func (e *ErrEngine) Error() string {
	return fmt.Sprintf("engine error executing %q: %s", e.SQL, e.Reason)
}

// ErrIO wraps a failure from the sandboxed filesystem.
type ErrIO struct {
	Path   string
	Reason string
}

func (e *ErrIO) Error() string {
	return fmt.Sprintf("io error on %q: %s", e.Path, e.Reason)
}

// ErrLockContention reports a held file handle or named lock.
type ErrLockContention struct {
	Resource string
}

func (e *ErrLockContention) Error() string {
	return fmt.Sprintf("lock contention on %q", e.Resource)
}

// ErrCorruptSnapshot reports a shard below the minimum valid size or a
// missing manifest, discovered at the startup sweep.
type ErrCorruptSnapshot struct {
	SnapshotID string
	Reason     string
}

func (e *ErrCorruptSnapshot) Error() string {
	return fmt.Sprintf("corrupt snapshot %q: %s", e.SnapshotID, e.Reason)
}

// ErrMissingSnapshot reports a thaw requested against a snapshot with no
// manifest or shards on disk. The table is considered lost.
type ErrMissingSnapshot struct {
	SnapshotID string
}

func (e *ErrMissingSnapshot) Error() string {
	return fmt.Sprintf("snapshot %q has no manifest or shards", e.SnapshotID)
}

// ErrCappedAudit reports that an audit entry's row-level detail exceeded
// the 50,000-row cap and was truncated.
type ErrCappedAudit struct {
	AuditEntryID string
	RowCount     int
}

func (e *ErrCappedAudit) Error() string {
	return fmt.Sprintf("audit entry %q detail capped at 50000 rows (had %d)", e.AuditEntryID, e.RowCount)
}

// ErrValidation reports a pre-flight validation failure (stack/join/matcher)
// surfaced before any mutation is attempted.
type ErrValidation struct {
	Operation string
	Reason    string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Operation, e.Reason)
}

// ErrTableNotFound reports a reference to a table the engine does not know
// about (not currently live, and no snapshot on disk either).
type ErrTableNotFound struct {
	TableID string
}

func (e *ErrTableNotFound) Error() string {
	return fmt.Sprintf("table %q not found", e.TableID)
}

func NewErrEngine(sql, reason string) *ErrEngine         { return &ErrEngine{SQL: sql, Reason: reason} }
func NewErrIO(path, reason string) *ErrIO                { return &ErrIO{Path: path, Reason: reason} }
func NewErrLockContention(resource string) *ErrLockContention {
	return &ErrLockContention{Resource: resource}
}
func NewErrCorruptSnapshot(id, reason string) *ErrCorruptSnapshot {
	return &ErrCorruptSnapshot{SnapshotID: id, Reason: reason}
}
func NewErrMissingSnapshot(id string) *ErrMissingSnapshot {
	return &ErrMissingSnapshot{SnapshotID: id}
}
func NewErrCappedAudit(id string, rows int) *ErrCappedAudit {
	return &ErrCappedAudit{AuditEntryID: id, RowCount: rows}
}
func NewErrValidation(op, reason string) *ErrValidation {
	return &ErrValidation{Operation: op, Reason: reason}
}
func NewErrTableNotFound(tableID string) *ErrTableNotFound {
	return &ErrTableNotFound{TableID: tableID}
}
