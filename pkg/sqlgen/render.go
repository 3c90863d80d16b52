// Package sqlgen renders row changes as MySQL statements that replay them.
package sqlgen

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/datazip-inc/binlogdir/pkg/charset"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/shopspring/decimal"
)

// Render turns changes into statements. Consecutive changes of the same kind, table and
// column set share one statement: REPLACE INTO for inserts and updates, DELETE ... IN for deletes.
func Render(changes []*types.RowChange) ([]string, error) {
	var statements []string
	for start := 0; start < len(changes); {
		end := start + 1
		columns := columnsOf(changes[start])
		for end < len(changes) && sameBatch(changes[start], changes[end], columns) {
			end++
		}

		rendered, err := renderBatch(changes[start:end], columns)
		if err != nil {
			return nil, err
		}
		statements = append(statements, rendered...)
		start = end
	}
	return statements, nil
}

func sameBatch(first, next *types.RowChange, columns []types.ColumnRef) bool {
	if first.Kind == types.Delete || next.Kind == types.Delete {
		return first.Kind == next.Kind && first.Table == next.Table && first.KeyColumn != "" && first.KeyColumn == next.KeyColumn
	}
	return first.Table == next.Table && slices.Equal(columns, columnsOf(next))
}

// columnsOf lists the image's columns in table order, followed by attributes a script added
func columnsOf(change *types.RowChange) []types.ColumnRef {
	image := change.Image()
	columns := make([]types.ColumnRef, 0, len(image))
	known := make(map[string]struct{}, len(change.Columns))
	for _, column := range change.Columns {
		known[column.Name] = struct{}{}
		if _, found := image[column.Name]; found {
			columns = append(columns, column)
		}
	}

	var extra []string
	for name := range image {
		if _, found := known[name]; !found {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		columns = append(columns, types.ColumnRef{Name: name})
	}
	return columns
}

func renderBatch(changes []*types.RowChange, columns []types.ColumnRef) ([]string, error) {
	first := changes[0]
	if first.Kind != types.Delete {
		rows := make([]string, 0, len(changes))
		for _, change := range changes {
			row, err := renderRow(change.Attributes, columns)
			if err != nil {
				return nil, fmt.Errorf("failed to render row of `%s`: %s", change.Table, err)
			}
			rows = append(rows, row)
		}
		names := make([]string, len(columns))
		for i, column := range columns {
			names[i] = QuoteIdentifier(column.Name)
		}
		return []string{fmt.Sprintf("REPLACE INTO %s (%s) VALUES (%s)",
			QuoteIdentifier(first.Table), strings.Join(names, ", "), strings.Join(rows, "),("))}, nil
	}

	if first.KeyColumn == "" {
		return renderKeylessDeletes(changes, columns)
	}
	keyCharset := ""
	for _, column := range first.Columns {
		if column.Name == first.KeyColumn {
			keyCharset = column.Charset
		}
	}
	keys := make([]string, 0, len(changes))
	for _, change := range changes {
		key, err := Literal(change.Key, keyCharset)
		if err != nil {
			return nil, fmt.Errorf("failed to render key of `%s`: %s", change.Table, err)
		}
		keys = append(keys, key)
	}
	return []string{fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
		QuoteIdentifier(first.Table), QuoteIdentifier(first.KeyColumn), strings.Join(keys, ","))}, nil
}

// renderKeylessDeletes matches the whole before-image, one row per statement
func renderKeylessDeletes(changes []*types.RowChange, columns []types.ColumnRef) ([]string, error) {
	statements := make([]string, 0, len(changes))
	for _, change := range changes {
		conditions := make([]string, 0, len(columns))
		for _, column := range columns {
			value, err := Literal(change.Before[column.Name], column.Charset)
			if err != nil {
				return nil, fmt.Errorf("failed to render `%s`.`%s`: %s", change.Table, column.Name, err)
			}
			conditions = append(conditions, fmt.Sprintf("%s <=> %s", QuoteIdentifier(column.Name), value))
		}
		statements = append(statements, fmt.Sprintf("DELETE FROM %s WHERE %s LIMIT 1",
			QuoteIdentifier(change.Table), strings.Join(conditions, " AND ")))
	}
	return statements, nil
}

func renderRow(image map[string]any, columns []types.ColumnRef) (string, error) {
	values := make([]string, len(columns))
	for i, column := range columns {
		value, err := Literal(image[column.Name], column.Charset)
		if err != nil {
			return "", fmt.Errorf("column `%s`: %s", column.Name, err)
		}
		values[i] = value
	}
	return strings.Join(values, ","), nil
}

// Literal renders one value. Text in a utf8 charset is quoted; text in any other known charset
// is encoded back to that charset and written as a hex literal so the bytes survive exactly.
func Literal(value any, charsetName string) (string, error) {
	switch v := value.(type) {
	case nil:
		return "NULL", nil
	case string:
		if charset.Classify(charsetName) == charset.Encoded {
			encoded, err := charset.Encode(charsetName, v)
			if err != nil {
				return "", err
			}
			return hexLiteral(encoded), nil
		}
		return Quote(v), nil
	case []byte:
		return hexLiteral(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case types.Decimal:
		return v.String(), nil
	case decimal.Decimal:
		return v.String(), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case time.Time:
		return Quote(v.UTC().Format("2006-01-02 15:04:05")), nil
	}
	return "", fmt.Errorf("cannot render value of type %T", value)
}

func hexLiteral(data []byte) string {
	return "x'" + hex.EncodeToString(data) + "'"
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\x00", `\0`,
	"\x1a", `\Z`,
)

// Quote escapes s so that the literal never spans lines
func Quote(s string) string {
	return "'" + escaper.Replace(s) + "'"
}

func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
