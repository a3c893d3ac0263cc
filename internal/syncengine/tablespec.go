package syncengine

import "strings"

// TableSpec describes how one DBF table maps onto a SQL table: its natural
// key column (empty for append-only tables like movements), and the
// per-DBF-field name remapping the original deployment used.
type TableSpec struct {
	SQLTable    string
	KeyField    string            // upper-case DBF field name holding the natural key, empty if none
	FieldRename map[string]string // upper-case DBF field name -> SQL column name
}

var customersSpec = TableSpec{
	SQLTable: "customers",
	KeyField: "NUMCLI",
}

var productsSpec = TableSpec{
	SQLTable: "products",
	KeyField: "NUMART",
	FieldRename: map[string]string{
		"DESC":   "desc_product",
		"SERIES": "series_control",
	},
}

var movementsSpec = TableSpec{
	SQLTable: "movements",
	// no natural key: every record is an append-only insert
}

// tableSynonyms maps each substring a DBF basename is checked for to its
// TableSpec. Classification is substring containment, not exact match — the
// ERP deployment uses both abbreviated and spelled-out table names
// (e.g. "arts.dbf" and "articulos_2024.dbf" both mean products).
var tableSynonyms = []struct {
	substr string
	spec   TableSpec
}{
	{"clientes", customersSpec},
	{"arts", productsSpec},
	{"articulos", productsSpec},
	{"movim", movementsSpec},
	{"movimientos", movementsSpec},
}

// ClassifyTable returns the TableSpec for basename (matched case-insensitive
// by substring containment, without extension), and whether it is a
// recognized, watched table.
func ClassifyTable(basename string) (TableSpec, bool) {
	name := strings.ToLower(strings.TrimSuffix(basename, fileExt(basename)))
	for _, syn := range tableSynonyms {
		if strings.Contains(name, syn.substr) {
			return syn.spec, true
		}
	}
	return TableSpec{}, false
}

func fileExt(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i:]
		}
	}
	return ""
}

// normalizeRow converts a raw dbf.Record into the column-name-keyed row the
// store expects: apply per-table field renames, lower-case everything
// else, trim strings, and turn empty strings into nulls so a blank ERP
// field doesn't overwrite a previously-populated column with "".
func normalizeRow(spec TableSpec, rec map[string]any) map[string]any {
	row := make(map[string]any, len(rec))

	for field, val := range rec {
		col, ok := spec.FieldRename[field]
		if !ok {
			col = strings.ToLower(field)
		}

		if s, isStr := val.(string); isStr {
			trimmed := strings.TrimSpace(s)
			if trimmed == "" {
				row[col] = nil
				continue
			}
			row[col] = trimmed
			continue
		}

		row[col] = val
	}

	return row
}

// naturalKey extracts and trims the configured key field's value from rec,
// returning "" if the field is absent, not a string, or blank after
// trimming — any of which means this record is skipped rather than
// upserted.
func naturalKey(spec TableSpec, rec map[string]any) string {
	if spec.KeyField == "" {
		return ""
	}

	v, ok := rec[spec.KeyField]
	if !ok {
		return ""
	}

	s, ok := v.(string)
	if !ok {
		return ""
	}

	return strings.TrimSpace(s)
}
