package binlog

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/pkg/charset"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/shopspring/decimal"
)

const (
	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
)

// Decoder turns decoded rows events into row changes keyed by column name
type Decoder struct {
	fallback string
}

// NewDecoder takes the policy for text in a charset with no registered encoding:
// "raw" keeps the bytes, "utf8" reads them as UTF-8 replacing invalid sequences.
func NewDecoder(fallback string) *Decoder {
	return &Decoder{fallback: fallback}
}

func (d *Decoder) Decode(ev *RawEvent, mapping *Mapping) ([]*types.RowChange, error) {
	rows, ok := ev.Event.(*replication.RowsEvent)
	if !ok {
		return nil, fmt.Errorf("event %s is not a rows event", ev.Header.EventType)
	}
	kind, ok := ev.ChangeType()
	if !ok {
		return nil, fmt.Errorf("unsupported rows event %s", ev.Header.EventType)
	}

	step := 1
	if kind == types.Update {
		step = 2
		if len(rows.Rows)%2 != 0 {
			return nil, fmt.Errorf("update event on `%s` has %d row images, expected before/after pairs", mapping.Table, len(rows.Rows))
		}
	}

	position := ev.NextPosition()
	timestamp := time.Unix(int64(ev.Header.Timestamp), 0).UTC()
	changes := make([]*types.RowChange, 0, len(rows.Rows)/step)
	for i := 0; i < len(rows.Rows); i += step {
		change := &types.RowChange{
			Kind:      kind,
			Database:  mapping.Database,
			Table:     mapping.Table,
			Columns:   mapping.Refs(),
			Position:  position,
			Timestamp: timestamp,
		}

		var err error
		switch kind {
		case types.Insert:
			change.Attributes, err = d.image(rows, i, mapping)
		case types.Delete:
			change.Before, err = d.image(rows, i, mapping)
		case types.Update:
			if change.Before, err = d.image(rows, i, mapping); err == nil {
				change.Attributes, err = d.image(rows, i+1, mapping)
			}
		}
		if err != nil {
			return nil, err
		}

		if mapping.HasPrimaryKey() {
			change.KeyColumn = mapping.Columns[mapping.PrimaryKeyIndex].Name
			change.Key = change.Image()[change.KeyColumn]
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func (d *Decoder) image(rows *replication.RowsEvent, idx int, mapping *Mapping) (map[string]any, error) {
	row := rows.Rows[idx]
	if len(row) != len(mapping.Columns) {
		return nil, fmt.Errorf("column count mismatch: expected %d, got %d", len(mapping.Columns), len(row))
	}

	var skipped map[int]struct{}
	if idx < len(rows.SkippedColumns) && len(rows.SkippedColumns[idx]) > 0 {
		skipped = make(map[int]struct{}, len(rows.SkippedColumns[idx]))
		for _, col := range rows.SkippedColumns[idx] {
			skipped[col] = struct{}{}
		}
	}

	record := make(map[string]any, len(row))
	for i, raw := range row {
		if _, skip := skipped[i]; skip {
			continue
		}
		column := mapping.Columns[i]
		value, err := d.value(column, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode `%s`.`%s`: %s", mapping.Table, column.Name, err)
		}
		record[column.Name] = value
	}
	return record, nil
}

func (d *Decoder) value(column MappedColumn, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch {
	case column.Declared.IsInteger():
		return integerValue(column, raw)
	case column.Declared.IsText():
		return d.textValue(column, raw)
	case column.Declared.IsTemporal():
		return temporalValue(column, raw)
	}

	switch column.Declared {
	case types.Float:
		switch v := raw.(type) {
		case float32:
			return v, nil
		case float64:
			return float32(v), nil
		}
	case types.DecimalType:
		switch v := raw.(type) {
		case decimal.Decimal:
			return types.NewDecimal(v, column.Scale()), nil
		case string:
			parsed, err := decimal.NewFromString(v)
			if err != nil {
				return nil, err
			}
			return types.NewDecimal(parsed, column.Scale()), nil
		}
	}
	return nil, fmt.Errorf("unexpected value %T for %s column", raw, column.Declared)
}

// temporalValue formats datetime and timestamp as UTC "YYYY-MM-DD HH:MM:SS" and date as "YYYY-MM-DD"
func temporalValue(column MappedColumn, raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		if column.Declared == types.Date {
			return v.Format(dateLayout), nil
		}
		return v.UTC().Format(dateTimeLayout), nil
	case string:
		// zero dates are not representable as time.Time; drop fractional seconds
		if column.Declared != types.Date && len(v) > len(dateTimeLayout) {
			return v[:len(dateTimeLayout)], nil
		}
		return v, nil
	}
	return nil, fmt.Errorf("unexpected value %T for %s column", raw, column.Declared)
}

// integerValue returns int64, or uint64 for unsigned columns reinterpreted at the wire width
func integerValue(column MappedColumn, raw any) (any, error) {
	var signed int64
	switch v := raw.(type) {
	case int8:
		signed = int64(v)
	case int16:
		signed = int64(v)
	case int32:
		signed = int64(v)
	case int64:
		signed = v
	case int:
		signed = int64(v)
	case uint8:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case uint64:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected value %T for %s column", raw, column.Declared)
	}

	if !column.Unsigned {
		return signed, nil
	}
	bits := column.Wire.bits()
	if bits == 0 || bits == 64 {
		return uint64(signed), nil
	}
	return uint64(signed) & (1<<bits - 1), nil
}

func (d *Decoder) textValue(column MappedColumn, raw any) (any, error) {
	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil, fmt.Errorf("unexpected value %T for %s column", raw, column.Declared)
	}

	switch charset.Classify(column.Charset) {
	case charset.UTF8:
		return string(data), nil
	case charset.Binary:
		return bytes.Clone(data), nil
	case charset.Encoded:
		text, err := charset.Decode(column.Charset, data)
		if errors.Is(err, charset.ErrLossy) {
			// raw bytes render as a hex literal, which replays exactly
			return bytes.Clone(data), nil
		}
		return text, err
	}

	if d.fallback == constants.CharsetFallbackUTF8 {
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	}
	return bytes.Clone(data), nil
}
