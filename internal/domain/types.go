// Package domain holds the data model shared by every core subsystem:
// tables, commands, timelines, snapshots, changelog entries, audit
// projections, match pairs and diff rows.
package domain

// Row is a single table row keyed by column name, including the two
// identity columns (CSIDColumn, OriginIDColumn) that every live table
// carries.
type Row map[string]interface{}

const (
	// CSIDColumn is the stable monotonically increasing row identity
	// assigned at ingestion. It is never reassigned and defines a table's
	// canonical row order.
	CSIDColumn = "_cs_id"
	// OriginIDColumn is an opaque per-row identifier assigned once at
	// creation and preserved across edits, joins and stacks.
	OriginIDColumn = "_cs_origin_id"
)

// ColumnInfo describes one user-visible column. Identity columns are never
// represented here; they are implicit on every Table.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "int64" | "float64" | "bool" | "string"
	Nullable bool   `json:"nullable"`
}

// TableInfo is the schema of a live or snapshotted table.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnNames returns just the names, in declared order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ImportEncoding enumerates the encodings import_csv/import_excel can
// auto-detect or be told to use.
type ImportEncoding string

const (
	EncodingAuto   ImportEncoding = "auto"
	EncodingUTF8   ImportEncoding = "utf8"
	EncodingLatin1 ImportEncoding = "latin1"
)

// ImportDelimiter enumerates the delimiters import_csv can auto-detect or
// be told to use.
type ImportDelimiter string

const (
	DelimiterAuto  ImportDelimiter = "auto"
	DelimiterComma ImportDelimiter = ","
	DelimiterTab   ImportDelimiter = "\t"
	DelimiterPipe  ImportDelimiter = "|"
	DelimiterSemi  ImportDelimiter = ";"
)

// ImportSettings configures import_csv.
type ImportSettings struct {
	HeaderRow int // 1..10
	Encoding  ImportEncoding
	Delimiter ImportDelimiter
}
