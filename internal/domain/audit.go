package domain

import "time"

// AuditEntryType distinguishes transform-style audit entries (type A) from
// single-cell manual edits (type B).
type AuditEntryType string

const (
	AuditTypeA AuditEntryType = "A"
	AuditTypeB AuditEntryType = "B"
)

// AuditEntry is the projection computed on demand from a Timeline; it is
// never itself persisted (bulky row-level detail lives in internal/auditstore
// keyed by AuditEntryID, capped at 50,000 rows).
type AuditEntry struct {
	ID           string         `json:"id"` // == CommandID
	AuditEntryID string         `json:"audit_entry_id"`
	TableID      string         `json:"table_id"`
	TableName    string         `json:"table_name"`
	Action       string         `json:"action"`
	Details      string         `json:"details"`
	RowsAffected int64          `json:"rows_affected"`
	Timestamp    time.Time      `json:"timestamp"`
	EntryType    AuditEntryType `json:"entry_type"`
	HasRowDetails bool          `json:"has_row_details"`
	IsCapped     bool           `json:"is_capped,omitempty"`

	// Type B fields
	CSID         *int64      `json:"cs_id,omitempty"`
	Column       string      `json:"column,omitempty"`
	PreviousValue interface{} `json:"previous_value,omitempty"`
	NewValue      interface{} `json:"new_value,omitempty"`
}

// AuditDetailCap is the hard per-audit-entry row-level detail cap.
const AuditDetailCap = 50_000
