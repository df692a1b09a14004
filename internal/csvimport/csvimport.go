// Package csvimport is the import_csv operation: it turns raw
// CSV bytes into a brand-new live table, auto-detecting encoding and
// delimiter when asked to, and inferring a column type per header by
// sampling rows.
package csvimport

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
)

// sampleSize caps how many data rows feed type inference.
const sampleSize = 100

// Import parses data as CSV per settings, creates a fresh table named
// tableName in eng and bulk-loads every row into it, returning the
// resulting schema. tableName must not already exist.
func Import(ctx context.Context, eng *engine.Engine, tableName string, data []byte, settings domain.ImportSettings) (*domain.TableInfo, error) {
	decoded := decode(data, settings.Encoding)

	delim := resolveDelimiter(decoded, settings.Delimiter)

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headerRow := settings.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}

	var headers []string
	for i := 1; i < headerRow; i++ {
		if _, err := reader.Read(); err != nil {
			return nil, domain.NewErrValidation("import_csv", "file shorter than header_row setting")
		}
	}
	headerRecord, err := reader.Read()
	if err == io.EOF {
		return nil, domain.NewErrValidation("import_csv", "file is empty")
	}
	if err != nil {
		return nil, domain.NewErrValidation("import_csv", "failed to read header row: "+err.Error())
	}
	headers = make([]string, len(headerRecord))
	for i, h := range headerRecord {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		headers[i] = h
	}
	dedupeHeaders(headers)

	sample, err := readRecords(reader, sampleSize)
	if err != nil {
		return nil, domain.NewErrValidation("import_csv", "failed reading sample rows: "+err.Error())
	}

	columns := inferColumnTypes(headers, sample)

	if err := eng.CreateTable(ctx, tableName, columns); err != nil {
		return nil, err
	}

	if len(sample) > 0 {
		if err := eng.InsertRows(ctx, tableName, columns, convertToRows(headers, columns, sample)); err != nil {
			return nil, err
		}
	}

	for {
		batch, rerr := readRecords(reader, sampleSize)
		if len(batch) > 0 {
			if err := eng.InsertRows(ctx, tableName, columns, convertToRows(headers, columns, batch)); err != nil {
				return nil, err
			}
		}
		if rerr != nil {
			return nil, domain.NewErrValidation("import_csv", "failed reading rows: "+rerr.Error())
		}
		if len(batch) == 0 {
			break
		}
	}

	return &domain.TableInfo{Name: tableName, Columns: columns}, nil
}

// decode converts data to UTF-8 per encoding. EncodingLatin1 is decoded by
// hand: ISO-8859-1 maps byte value N directly to Unicode code point N, so
// no external charset table is needed. EncodingAuto sniffs: valid UTF-8
// passes through untouched, otherwise it's treated as Latin-1.
func decode(data []byte, enc domain.ImportEncoding) []byte {
	switch enc {
	case domain.EncodingUTF8:
		return data
	case domain.EncodingLatin1:
		return latin1ToUTF8(data)
	default: // auto
		if utf8.Valid(data) {
			return data
		}
		return latin1ToUTF8(data)
	}
}

func latin1ToUTF8(data []byte) []byte {
	out := make([]rune, len(data))
	for i, b := range data {
		out[i] = rune(b)
	}
	return []byte(string(out))
}

// resolveDelimiter returns settings.Delimiter verbatim unless it's "auto",
// in which case it picks whichever of , \t | ; appears most often in the
// first line of decoded.
func resolveDelimiter(decoded []byte, d domain.ImportDelimiter) rune {
	if d != domain.DelimiterAuto && d != "" {
		r := []rune(string(d))
		if len(r) == 1 {
			return r[0]
		}
	}
	nl := bytes.IndexByte(decoded, '\n')
	firstLine := decoded
	if nl >= 0 {
		firstLine = decoded[:nl]
	}
	candidates := []rune{',', '\t', '|', ';'}
	best := ','
	bestCount := -1
	for _, c := range candidates {
		count := bytes.Count(firstLine, []byte(string(c)))
		if count > bestCount {
			bestCount = count
			best = c
		}
	}
	return best
}

func dedupeHeaders(headers []string) {
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		if n, ok := seen[h]; ok {
			n++
			seen[h] = n
			headers[i] = fmt.Sprintf("%s_%d", h, n)
		} else {
			seen[h] = 0
		}
	}
}

func readRecords(reader *csv.Reader, n int) ([][]string, error) {
	var records [][]string
	for i := 0; i < n; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// inferColumnTypes samples rows and, per column, picks whichever of
// int64/float64/bool/string matches the most sampled values.
func inferColumnTypes(headers []string, rows [][]string) []domain.ColumnInfo {
	typeCounts := make([]map[string]int, len(headers))
	for i := range typeCounts {
		typeCounts[i] = map[string]int{"int64": 0, "float64": 0, "bool": 0, "string": 0}
	}

	for _, row := range rows {
		for j, value := range row {
			if j >= len(typeCounts) {
				break
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			kind := detectType(value)
			typeCounts[j][kind]++
			if kind == "int64" {
				// an integer value is also a valid float64
				typeCounts[j]["float64"]++
			}
		}
	}

	columns := make([]domain.ColumnInfo, len(headers))
	for j, header := range headers {
		bestType := "string"
		maxCount := 0
		for _, t := range []string{"int64", "float64", "bool", "string"} {
			if typeCounts[j][t] > maxCount {
				maxCount = typeCounts[j][t]
				bestType = t
			}
		}
		columns[j] = domain.ColumnInfo{Name: header, Type: bestType, Nullable: true}
	}
	return columns
}

func detectType(value string) string {
	if strings.EqualFold(value, "true") || strings.EqualFold(value, "false") {
		return "bool"
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return "int64"
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return "float64"
	}
	return "string"
}

func convertToRows(headers []string, columns []domain.ColumnInfo, rows [][]string) []domain.Row {
	result := make([]domain.Row, len(rows))
	for i, row := range rows {
		rowMap := make(domain.Row, len(columns))
		for j, col := range columns {
			if j < len(row) {
				rowMap[col.Name] = parseValue(row[j], col.Type)
			} else {
				rowMap[col.Name] = nil
			}
		}
		result[i] = rowMap
	}
	return result
}

func parseValue(value string, colType string) interface{} {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	switch colType {
	case "int64":
		if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return v
		}
	case "float64":
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return v
		}
	case "bool":
		if v, err := strconv.ParseBool(trimmed); err == nil {
			return v
		}
	}
	return trimmed
}
