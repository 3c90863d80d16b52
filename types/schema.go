package types

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/go-mysql-org/go-mysql/mysql"
)

// ColumnDef is one captured column, in ordinal order within its table
type ColumnDef struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	ColumnType      string `json:"column_type,omitempty"`
	OrdinalPosition int    `json:"ordinal_position"`
	CharacterSet    string `json:"character_set,omitempty"`
	Nullable        bool   `json:"nullable"`
	PrimaryKey      bool   `json:"primary_key"`
	Unsigned        bool   `json:"unsigned"`
}

type TableSchema struct {
	Database        string      `json:"database"`
	Table           string      `json:"table"`
	Columns         []ColumnDef `json:"columns"`
	PrimaryKeyIndex int         `json:"primary_key_index"`
}

// HasPrimaryKey reports whether a single primary key column was captured
func (t *TableSchema) HasPrimaryKey() bool {
	return t.PrimaryKeyIndex >= 0 && t.PrimaryKeyIndex < len(t.Columns)
}

// NewTableSchema orders columns by ordinal position and locates the first primary key column
func NewTableSchema(database, table string, columns []ColumnDef) *TableSchema {
	ordered := make([]ColumnDef, len(columns))
	copy(ordered, columns)
	slices.SortStableFunc(ordered, func(a, b ColumnDef) int {
		return cmp.Compare(a.OrdinalPosition, b.OrdinalPosition)
	})

	schema := &TableSchema{Database: database, Table: table, Columns: ordered, PrimaryKeyIndex: -1}
	for i, column := range ordered {
		if column.PrimaryKey {
			schema.PrimaryKeyIndex = i
			break
		}
	}

	return schema
}

// SchemaSnapshot is every table of one database as of CapturedAt. It is never mutated once built.
type SchemaSnapshot struct {
	Database   string                  `json:"database"`
	Tables     map[string]*TableSchema `json:"tables"`
	CapturedAt mysql.Position          `json:"captured_at"`
}

func (s *SchemaSnapshot) Table(name string) (*TableSchema, bool) {
	table, found := s.Tables[name]
	return table, found
}

func (s *SchemaSnapshot) Token() string {
	return SchemaToken(s.Database, s.CapturedAt)
}

// SchemaToken builds the cache and store key {db}--{file}--{pos}
func SchemaToken(database string, pos mysql.Position) string {
	return strings.Join([]string{database, pos.Name, strconv.FormatUint(uint64(pos.Pos), 10)}, constants.SchemaTokenSeparator)
}

// ParseSchemaToken is the inverse of SchemaToken
func ParseSchemaToken(token string) (string, mysql.Position, error) {
	parts := strings.Split(token, constants.SchemaTokenSeparator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", mysql.Position{}, fmt.Errorf("invalid schema token: %q", token)
	}

	pos, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return "", mysql.Position{}, fmt.Errorf("invalid position in schema token %q: %s", token, err)
	}

	return parts[0], mysql.Position{Name: parts[1], Pos: uint32(pos)}, nil
}
