package metadata

import (
	"errors"
	"regexp"

	"github.com/querydeck/dbridge/pkg/rowset"
)

// Internal catalog rows are hidden from views: index and system table
// types, and the information_schema / system schemas.
var (
	excludedTableType = regexp.MustCompile(`(?i)INDEX|SYSTEM`)
	excludedSchema    = regexp.MustCompile(`(?i)information_schema|SYSTEM`)
)

// FilterTables turns a raw table-info result into the user-visible
// table list. Rows whose TABLE_TYPE or TABLE_SCHEM match the exclusion
// patterns are dropped, and a null REMARKS becomes the empty string.
func FilterTables(res *rowset.Result) ([]Table, error) {
	tables := make([]Table, 0, res.Len())
	for i := 0; i < res.Len(); i++ {
		row := res.Row(i)

		typ, err := row.GetString("TABLE_TYPE")
		if err != nil {
			return nil, err
		}
		schema, err := row.GetString("TABLE_SCHEM")
		if err != nil {
			return nil, err
		}
		if excludedTableType.MatchString(typ) || excludedSchema.MatchString(schema) {
			continue
		}

		name, err := row.GetString("TABLE_NAME")
		if err != nil {
			return nil, err
		}
		catalog, err := row.GetString("TABLE_CAT")
		if err != nil {
			return nil, err
		}
		remarks, err := remarksOrEmpty(row)
		if err != nil {
			return nil, err
		}

		tables = append(tables, Table{
			Catalog: catalog,
			Schema:  schema,
			Name:    name,
			Type:    typ,
			Remarks: remarks,
		})
	}
	return tables, nil
}

// remarksOrEmpty tolerates drivers that omit the REMARKS column
// entirely; a present-but-null value already maps to "".
func remarksOrEmpty(row rowset.Row) (string, error) {
	remarks, err := row.GetString("REMARKS")
	if err != nil {
		var nf *rowset.NotFoundError
		if errors.As(err, &nf) {
			return "", nil
		}
		return "", err
	}
	return remarks, nil
}
