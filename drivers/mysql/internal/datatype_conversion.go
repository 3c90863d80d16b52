package driver

import (
	"database/sql"
	"strings"

	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/types"
)

// columnRow is one row of jdbc.MySQLSchemaColumnsQuery
type columnRow struct {
	TableName       string         `db:"table_name"`
	ColumnName      string         `db:"column_name"`
	OrdinalPosition int            `db:"ordinal_position"`
	DataType        string         `db:"data_type"`
	ColumnType      string         `db:"column_type"`
	IsNullable      string         `db:"is_nullable"`
	ColumnKey       string         `db:"column_key"`
	CharacterSet    sql.NullString `db:"character_set_name"`
}

func columnDef(row columnRow) types.ColumnDef {
	dataType := strings.ToLower(row.DataType)
	if _, supported := types.ParseSQLType(dataType); !supported {
		// kept in the snapshot, reading a row of this table fails
		logger.Warnf("unsupported MySQL type '%s' for column '%s.%s'", dataType, row.TableName, row.ColumnName)
	}

	return types.ColumnDef{
		Name:            row.ColumnName,
		DataType:        dataType,
		ColumnType:      row.ColumnType,
		OrdinalPosition: row.OrdinalPosition,
		CharacterSet:    row.CharacterSet.String,
		Nullable:        strings.EqualFold("yes", row.IsNullable),
		PrimaryKey:      row.ColumnKey == "PRI",
		Unsigned:        strings.Contains(strings.ToLower(row.ColumnType), "unsigned"),
	}
}

// buildSnapshot groups column rows by table
func buildSnapshot(database string, rows []columnRow) map[string]*types.TableSchema {
	grouped := make(map[string][]types.ColumnDef)
	var order []string
	for _, row := range rows {
		if _, found := grouped[row.TableName]; !found {
			order = append(order, row.TableName)
		}
		grouped[row.TableName] = append(grouped[row.TableName], columnDef(row))
	}

	tables := make(map[string]*types.TableSchema, len(order))
	for _, table := range order {
		tables[table] = types.NewTableSchema(database, table, grouped[table])
	}
	return tables
}
