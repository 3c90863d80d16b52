package binlog

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound    = errors.New("binlog file not found")
	ErrSchemaDrift     = errors.New("schema drift")
	ErrUnsupportedType = errors.New("unsupported column type")
)

type DriftKind int

const (
	MissingTable DriftKind = iota
	ColumnCountMismatch
	ColumnTypeMismatch
)

// SchemaDriftError means a table-map event disagrees with the snapshot it is decoded against.
// Sessions must not resume past it without capturing a new snapshot.
type SchemaDriftError struct {
	Kind          DriftKind
	Table         string
	Ordinal       int
	Column        string
	Expected      string
	Observed      string
	ExpectedCount int
	ObservedCount int
}

func (e *SchemaDriftError) Error() string {
	switch e.Kind {
	case MissingTable:
		return fmt.Sprintf("schema drift: could not find `%s` in stored schema", e.Table)
	case ColumnCountMismatch:
		return fmt.Sprintf("schema drift: expected %d columns in `%s` but got %d columns", e.ExpectedCount, e.Table, e.ObservedCount)
	default:
		return fmt.Sprintf("schema drift: in `%s`, expected column #%d (`%s`) to be a %s, instead saw a %s",
			e.Table, e.Ordinal, e.Column, e.Expected, e.Observed)
	}
}

func (e *SchemaDriftError) Is(target error) bool {
	return target == ErrSchemaDrift
}

// UnsupportedTypeError is raised for a captured type that has no wire mapping
type UnsupportedTypeError struct {
	Table    string
	Column   string
	DataType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported column type '%s' for `%s`.`%s`", e.DataType, e.Table, e.Column)
}

func (e *UnsupportedTypeError) Is(target error) bool {
	return target == ErrUnsupportedType
}
