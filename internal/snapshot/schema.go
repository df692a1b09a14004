// Package snapshot is the snapshot store: it exports a live
// table to one or more columnar Parquet shards plus a JSON manifest, and
// imports them back, using atomic tmp-file-then-rename writes throughout.
// Schema conversion follows a common Go Parquet-writer pattern: build the
// schema as a node tree, then write rows through a generic map-keyed writer.
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	pq "github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/cleanslate/core/internal/domain"
)

func domainTypeToParquetNode(col domain.ColumnInfo) pq.Node {
	var node pq.Node
	switch strings.ToLower(col.Type) {
	case "int64", "bigint":
		node = pq.Leaf(pq.Int64Type)
	case "float64", "double":
		node = pq.Leaf(pq.DoubleType)
	case "bool", "boolean":
		node = pq.Leaf(pq.BooleanType)
	default:
		node = pq.String()
	}
	node = pq.Optional(node)
	return node
}

func domainSchemaToParquet(tableName string, columns []domain.ColumnInfo) *pq.Schema {
	group := make(pq.Group)
	// Identity columns travel with every shard so a thawed table can be
	// reloaded without consulting any other source of truth.
	group[domain.CSIDColumn] = pq.Leaf(pq.Int64Type)
	group[domain.OriginIDColumn] = pq.String()
	for _, col := range columns {
		group[col.Name] = domainTypeToParquetNode(col)
	}
	return pq.NewSchema(tableName, group)
}

func domainRowToParquetMap(row domain.Row) map[string]interface{} {
	return map[string]interface{}(row)
}

func parquetValueToGo(col domain.ColumnInfo, v pq.Value) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case pq.Boolean:
		return v.Boolean()
	case pq.Int32:
		return int64(v.Int32())
	case pq.Int64:
		return v.Int64()
	case pq.Float:
		return float64(v.Float())
	case pq.Double:
		return v.Double()
	case pq.ByteArray:
		data := v.ByteArray()
		if strings.ToLower(col.Type) == "bytes" {
			cp := make([]byte, len(data))
			copy(cp, data)
			return cp
		}
		return string(data)
	default:
		return string(v.ByteArray())
	}
}

// shardFieldOrder returns every field written into a shard (the two
// identity columns plus columns), sorted alphabetically. pq.Group is a
// map, and parquet-go lays out a map-backed schema's fields in sorted-key
// order rather than insertion order, so a positional pq.Row read must
// walk fields in this same order to line values back up with names.
func shardFieldOrder(columns []domain.ColumnInfo) []string {
	names := make([]string, 0, len(columns)+2)
	names = append(names, domain.CSIDColumn, domain.OriginIDColumn)
	for _, c := range columns {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// shardColumnByName maps every field name written into a shard to the
// domain.ColumnInfo parquetValueToGo needs to decode it, including the
// two identity columns (never present in the caller's columns slice).
func shardColumnByName(columns []domain.ColumnInfo) map[string]domain.ColumnInfo {
	byName := make(map[string]domain.ColumnInfo, len(columns)+2)
	byName[domain.CSIDColumn] = domain.ColumnInfo{Name: domain.CSIDColumn, Type: "int64"}
	byName[domain.OriginIDColumn] = domain.ColumnInfo{Name: domain.OriginIDColumn, Type: "string"}
	for _, c := range columns {
		byName[c.Name] = c
	}
	return byName
}

func parquetRowToDomain(order []string, byName map[string]domain.ColumnInfo, row pq.Row) domain.Row {
	result := make(domain.Row, len(order))
	for i, name := range order {
		if i >= len(row) {
			break
		}
		result[name] = parquetValueToGo(byName[name], row[i])
	}
	return result
}

func compressionCodec(name string) compress.Codec {
	switch strings.ToLower(name) {
	case "snappy":
		return &pq.Snappy
	case "gzip":
		return &pq.Gzip
	case "zstd":
		return &pq.Zstd
	case "lz4", "lz4raw":
		return &pq.Lz4Raw
	case "none", "uncompressed", "":
		return nil
	default:
		return &pq.Snappy
	}
}

func shardFileName(index int) string {
	return fmt.Sprintf("shard-%05d.parquet", index)
}
