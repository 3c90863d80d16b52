package binlog

import (
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/go-mysql-org/go-mysql/replication"
)

// compatibleWire lists the wire types a declared type may arrive as
var compatibleWire = map[types.SQLType][]WireType{
	types.BigInt:      {WireLongLong},
	types.Int:         {WireLong},
	types.SmallInt:    {WireShort},
	types.TinyInt:     {WireTiny},
	types.DateTime:    {WireDateTime, WireDateTime2},
	types.Timestamp:   {WireTimestamp, WireTimestamp2},
	types.Date:        {WireDate, WireNewDate},
	types.Text:        {WireBlob},
	types.MediumText:  {WireBlob},
	types.VarChar:     {WireVarChar},
	types.Float:       {WireFloat},
	types.DecimalType: {WireDecimal, WireNewDecimal},
}

func isCompatible(declared types.SQLType, wire WireType) bool {
	for _, candidate := range compatibleWire[declared] {
		if candidate == wire {
			return true
		}
	}
	return false
}

type MappedColumn struct {
	Name     string
	Declared types.SQLType
	Wire     WireType
	Meta     uint16
	Charset  string
	Unsigned bool
}

// Scale of a decimal column, taken from the table-map metadata
func (c MappedColumn) Scale() int32 {
	if c.Wire == WireNewDecimal {
		return int32(c.Meta & 0xff)
	}
	return 0
}

// Mapping binds a table id to the captured schema it was validated against
type Mapping struct {
	TableID         uint64
	Database        string
	Table           string
	Columns         []MappedColumn
	PrimaryKeyIndex int
	refs            []types.ColumnRef
}

func (m *Mapping) HasPrimaryKey() bool {
	return m.PrimaryKeyIndex >= 0 && m.PrimaryKeyIndex < len(m.Columns)
}

func (m *Mapping) Refs() []types.ColumnRef {
	return m.refs
}

// Resolver validates table-map events against a snapshot. It is owned by a single session.
type Resolver struct {
	snapshot *types.SchemaSnapshot
	excluded func(table string) bool
	mappings map[uint64]*Mapping
	skipped  map[uint64]struct{}
}

func NewResolver(snapshot *types.SchemaSnapshot, excluded func(table string) bool) *Resolver {
	return &Resolver{
		snapshot: snapshot,
		excluded: excluded,
		mappings: make(map[uint64]*Mapping),
		skipped:  make(map[uint64]struct{}),
	}
}

// Resolve registers the table id of e. A nil mapping with a nil error means the table is skipped:
// other database, or excluded. Excluded tables are never looked up in the snapshot.
func (r *Resolver) Resolve(e *replication.TableMapEvent) (*Mapping, error) {
	if mapping, found := r.mappings[e.TableID]; found {
		return mapping, nil
	}
	if _, found := r.skipped[e.TableID]; found {
		return nil, nil
	}

	database, table := string(e.Schema), string(e.Table)
	if database != r.snapshot.Database || (r.excluded != nil && r.excluded(table)) {
		logger.Debugf("skipping table map %d for `%s`.`%s`", e.TableID, database, table)
		r.skipped[e.TableID] = struct{}{}
		return nil, nil
	}

	schema, found := r.snapshot.Table(table)
	if !found {
		return nil, &SchemaDriftError{Kind: MissingTable, Table: table}
	}
	if int(e.ColumnCount) != len(schema.Columns) || len(e.ColumnType) != len(schema.Columns) {
		return nil, &SchemaDriftError{
			Kind:          ColumnCountMismatch,
			Table:         table,
			ExpectedCount: len(schema.Columns),
			ObservedCount: int(e.ColumnCount),
		}
	}

	mapping := &Mapping{
		TableID:         e.TableID,
		Database:        database,
		Table:           table,
		Columns:         make([]MappedColumn, len(schema.Columns)),
		PrimaryKeyIndex: schema.PrimaryKeyIndex,
		refs:            make([]types.ColumnRef, len(schema.Columns)),
	}
	for idx, column := range schema.Columns {
		declared, supported := types.ParseSQLType(column.DataType)
		if !supported {
			return nil, &UnsupportedTypeError{Table: table, Column: column.Name, DataType: column.DataType}
		}
		wire := WireType(e.ColumnType[idx])
		if !isCompatible(declared, wire) {
			return nil, &SchemaDriftError{
				Kind:     ColumnTypeMismatch,
				Table:    table,
				Ordinal:  idx + 1,
				Column:   column.Name,
				Expected: string(declared),
				Observed: wire.String(),
			}
		}

		var meta uint16
		if idx < len(e.ColumnMeta) {
			meta = e.ColumnMeta[idx]
		}
		mapping.Columns[idx] = MappedColumn{
			Name:     column.Name,
			Declared: declared,
			Wire:     wire,
			Meta:     meta,
			Charset:  column.CharacterSet,
			Unsigned: column.Unsigned,
		}
		mapping.refs[idx] = types.ColumnRef{Name: column.Name, Charset: column.CharacterSet}
	}

	r.mappings[e.TableID] = mapping
	return mapping, nil
}

func (r *Resolver) Lookup(tableID uint64) (*Mapping, bool) {
	mapping, found := r.mappings[tableID]
	return mapping, found
}

// Resolved reports whether rows of tableID should be decoded
func (r *Resolver) Resolved(tableID uint64) bool {
	_, found := r.mappings[tableID]
	return found
}
