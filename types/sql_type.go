package types

import "strings"

// SQLType is a declared column type as captured from INFORMATION_SCHEMA.COLUMNS.DATA_TYPE
type SQLType string

const (
	BigInt      SQLType = "bigint"
	Int         SQLType = "int"
	SmallInt    SQLType = "smallint"
	TinyInt     SQLType = "tinyint"
	DateTime    SQLType = "datetime"
	Timestamp   SQLType = "timestamp"
	Date        SQLType = "date"
	Text        SQLType = "text"
	MediumText  SQLType = "mediumtext"
	VarChar     SQLType = "varchar"
	Float       SQLType = "float"
	DecimalType SQLType = "decimal"
)

var supportedSQLTypes = map[SQLType]struct{}{
	BigInt: {}, Int: {}, SmallInt: {}, TinyInt: {},
	DateTime: {}, Timestamp: {}, Date: {},
	Text: {}, MediumText: {}, VarChar: {},
	Float: {}, DecimalType: {},
}

// ParseSQLType normalizes a declared type; ok is false for types with no decode mapping
func ParseSQLType(declared string) (SQLType, bool) {
	t := SQLType(strings.ToLower(strings.TrimSpace(declared)))
	_, ok := supportedSQLTypes[t]
	return t, ok
}

func (t SQLType) IsInteger() bool {
	switch t {
	case BigInt, Int, SmallInt, TinyInt:
		return true
	}
	return false
}

func (t SQLType) IsText() bool {
	switch t {
	case Text, MediumText, VarChar:
		return true
	}
	return false
}

func (t SQLType) IsTemporal() bool {
	switch t {
	case DateTime, Timestamp, Date:
		return true
	}
	return false
}
