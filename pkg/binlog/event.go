package binlog

import (
	"fmt"

	"github.com/datazip-inc/binlogdir/types"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
)

// WireType is the column type code a table-map event declares for a column
type WireType byte

const (
	WireDecimal    = WireType(mysql.MYSQL_TYPE_DECIMAL)
	WireTiny       = WireType(mysql.MYSQL_TYPE_TINY)
	WireShort      = WireType(mysql.MYSQL_TYPE_SHORT)
	WireLong       = WireType(mysql.MYSQL_TYPE_LONG)
	WireFloat      = WireType(mysql.MYSQL_TYPE_FLOAT)
	WireDouble     = WireType(mysql.MYSQL_TYPE_DOUBLE)
	WireNull       = WireType(mysql.MYSQL_TYPE_NULL)
	WireTimestamp  = WireType(mysql.MYSQL_TYPE_TIMESTAMP)
	WireLongLong   = WireType(mysql.MYSQL_TYPE_LONGLONG)
	WireInt24      = WireType(mysql.MYSQL_TYPE_INT24)
	WireDate       = WireType(mysql.MYSQL_TYPE_DATE)
	WireTime       = WireType(mysql.MYSQL_TYPE_TIME)
	WireDateTime   = WireType(mysql.MYSQL_TYPE_DATETIME)
	WireYear       = WireType(mysql.MYSQL_TYPE_YEAR)
	WireNewDate    = WireType(mysql.MYSQL_TYPE_NEWDATE)
	WireVarChar    = WireType(mysql.MYSQL_TYPE_VARCHAR)
	WireBit        = WireType(mysql.MYSQL_TYPE_BIT)
	WireTimestamp2 = WireType(mysql.MYSQL_TYPE_TIMESTAMP2)
	WireDateTime2  = WireType(mysql.MYSQL_TYPE_DATETIME2)
	WireTime2      = WireType(mysql.MYSQL_TYPE_TIME2)
	WireJSON       = WireType(mysql.MYSQL_TYPE_JSON)
	WireNewDecimal = WireType(mysql.MYSQL_TYPE_NEWDECIMAL)
	WireEnum       = WireType(mysql.MYSQL_TYPE_ENUM)
	WireSet        = WireType(mysql.MYSQL_TYPE_SET)
	WireTinyBlob   = WireType(mysql.MYSQL_TYPE_TINY_BLOB)
	WireMediumBlob = WireType(mysql.MYSQL_TYPE_MEDIUM_BLOB)
	WireLongBlob   = WireType(mysql.MYSQL_TYPE_LONG_BLOB)
	WireBlob       = WireType(mysql.MYSQL_TYPE_BLOB)
	WireVarString  = WireType(mysql.MYSQL_TYPE_VAR_STRING)
	WireString     = WireType(mysql.MYSQL_TYPE_STRING)
	WireGeometry   = WireType(mysql.MYSQL_TYPE_GEOMETRY)
)

var wireNames = map[WireType]string{
	WireDecimal:    "decimal",
	WireTiny:       "tiny",
	WireShort:      "short",
	WireLong:       "long",
	WireFloat:      "float",
	WireDouble:     "double",
	WireNull:       "null",
	WireTimestamp:  "timestamp",
	WireLongLong:   "longlong",
	WireInt24:      "int24",
	WireDate:       "date",
	WireTime:       "time",
	WireDateTime:   "datetime",
	WireYear:       "year",
	WireNewDate:    "newdate",
	WireVarChar:    "varchar",
	WireBit:        "bit",
	WireTimestamp2: "timestamp2",
	WireDateTime2:  "datetime2",
	WireTime2:      "time2",
	WireJSON:       "json",
	WireNewDecimal: "newdecimal",
	WireEnum:       "enum",
	WireSet:        "set",
	WireTinyBlob:   "tiny_blob",
	WireMediumBlob: "medium_blob",
	WireLongBlob:   "long_blob",
	WireBlob:       "blob",
	WireVarString:  "var_string",
	WireString:     "string",
	WireGeometry:   "geometry",
}

func (t WireType) String() string {
	if name, found := wireNames[t]; found {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

// bits is the storage width of an integer wire type, 0 for anything else
func (t WireType) bits() uint {
	switch t {
	case WireTiny:
		return 8
	case WireShort:
		return 16
	case WireInt24:
		return 24
	case WireLong:
		return 32
	case WireLongLong:
		return 64
	}
	return 0
}

// RawEvent is one parsed binlog event together with the file it was read from
type RawEvent struct {
	File   string
	Header *replication.EventHeader
	Event  replication.Event
}

// NextPosition is the position right after this event
func (e *RawEvent) NextPosition() mysql.Position {
	return mysql.Position{Name: e.File, Pos: e.Header.LogPos}
}

// TableID is set for table-map and rows events only
func (e *RawEvent) TableID() (uint64, bool) {
	switch ev := e.Event.(type) {
	case *replication.TableMapEvent:
		return ev.TableID, true
	case *replication.RowsEvent:
		return ev.TableID, true
	}
	return 0, false
}

// ChangeType maps rows event types onto insert/update/delete
func (e *RawEvent) ChangeType() (types.ChangeType, bool) {
	switch e.Header.EventType {
	case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		return types.Insert, true
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		return types.Update, true
	case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		return types.Delete, true
	}
	return "", false
}
