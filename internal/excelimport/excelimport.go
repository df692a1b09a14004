// Package excelimport is the import_excel operation: it
// reads one sheet (the named one, else the first) of an .xlsx workbook via excelize and loads it into
// a brand-new live table, same header-row and type-inference discipline as
// internal/csvimport.
package excelimport

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cleanslate/core/internal/domain"
	"github.com/cleanslate/core/internal/engine"
)

const sampleSize = 100

// Import reads data as an .xlsx workbook, takes sheetName (or the
// workbook's first sheet if sheetName is empty), creates a fresh table
// named tableName in eng and bulk-loads every data row into it.
func Import(ctx context.Context, eng *engine.Engine, tableName, sheetName string, data []byte, settings domain.ImportSettings) (*domain.TableInfo, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewErrValidation("import_excel", "not a valid xlsx file: "+err.Error())
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.NewErrValidation("import_excel", "workbook has no sheets")
	}
	if sheetName == "" {
		sheetName = sheets[0]
	} else {
		found := false
		for _, s := range sheets {
			if s == sheetName {
				found = true
				break
			}
		}
		if !found {
			return nil, domain.NewErrValidation("import_excel", "sheet not found: "+sheetName)
		}
	}

	rows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, domain.NewErrValidation("import_excel", "failed to read sheet: "+err.Error())
	}

	headerRow := settings.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}
	if headerRow > len(rows) {
		return nil, domain.NewErrValidation("import_excel", "sheet shorter than header_row setting")
	}

	headerRecord := rows[headerRow-1]
	dataRows := rows[headerRow:]

	headers := make([]string, len(headerRecord))
	width := len(headerRecord)
	for _, r := range dataRows {
		if len(r) > width {
			width = len(r)
		}
	}
	if width > len(headers) {
		headers = make([]string, width)
	}
	for i := range headers {
		if i < len(headerRecord) {
			headers[i] = strings.TrimSpace(headerRecord[i])
		}
		if headers[i] == "" {
			headers[i] = columnLabel(i)
		}
	}
	dedupeHeaders(headers)

	sample := dataRows
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	columns := inferColumnTypes(headers, sample)

	if err := eng.CreateTable(ctx, tableName, columns); err != nil {
		return nil, err
	}

	const batchSize = 500
	for start := 0; start < len(dataRows); start += batchSize {
		end := start + batchSize
		if end > len(dataRows) {
			end = len(dataRows)
		}
		converted := convertToRows(columns, dataRows[start:end])
		if len(converted) > 0 {
			if err := eng.InsertRows(ctx, tableName, columns, converted); err != nil {
				return nil, err
			}
		}
	}

	return &domain.TableInfo{Name: tableName, Columns: columns}, nil
}

func columnLabel(i int) string {
	return "column_" + strconv.Itoa(i+1)
}

func dedupeHeaders(headers []string) {
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		if n, ok := seen[h]; ok {
			n++
			seen[h] = n
			headers[i] = h + "_" + strconv.Itoa(n)
		} else {
			seen[h] = 0
		}
	}
}

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

func convertToRows(columns []domain.ColumnInfo, rows [][]string) []domain.Row {
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
