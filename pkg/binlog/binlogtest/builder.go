// Package binlogtest writes small binlog files for tests. Files carry a 5.5 format
// description event, so events have no checksum trailer.
package binlogtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
)

const serverVersion = "5.5.0-binlogtest"

// Column describes a table-map column and how its values are encoded
type Column struct {
	Type      byte
	Length    int
	Precision int
	Scale     int
}

func TinyInt() Column   { return Column{Type: mysql.MYSQL_TYPE_TINY} }
func SmallInt() Column  { return Column{Type: mysql.MYSQL_TYPE_SHORT} }
func MediumInt() Column { return Column{Type: mysql.MYSQL_TYPE_INT24} }
func Int() Column       { return Column{Type: mysql.MYSQL_TYPE_LONG} }
func BigInt() Column    { return Column{Type: mysql.MYSQL_TYPE_LONGLONG} }
func Float() Column     { return Column{Type: mysql.MYSQL_TYPE_FLOAT} }
func DateTime() Column  { return Column{Type: mysql.MYSQL_TYPE_DATETIME2} }
func Timestamp() Column { return Column{Type: mysql.MYSQL_TYPE_TIMESTAMP2} }
func Date() Column      { return Column{Type: mysql.MYSQL_TYPE_DATE} }

func VarChar(length int) Column {
	return Column{Type: mysql.MYSQL_TYPE_VARCHAR, Length: length}
}

// Text columns store a 2 byte length prefix, mediumtext a 3 byte one
func Text() Column       { return Column{Type: mysql.MYSQL_TYPE_BLOB, Length: 2} }
func MediumText() Column { return Column{Type: mysql.MYSQL_TYPE_BLOB, Length: 3} }

func Decimal(precision, scale int) Column {
	return Column{Type: mysql.MYSQL_TYPE_NEWDECIMAL, Precision: precision, Scale: scale}
}

func (c Column) meta() []byte {
	switch c.Type {
	case mysql.MYSQL_TYPE_VARCHAR:
		return binary.LittleEndian.AppendUint16(nil, uint16(c.Length))
	case mysql.MYSQL_TYPE_BLOB:
		return []byte{byte(c.Length)}
	case mysql.MYSQL_TYPE_FLOAT:
		return []byte{4}
	case mysql.MYSQL_TYPE_DATETIME2, mysql.MYSQL_TYPE_TIMESTAMP2:
		return []byte{0}
	case mysql.MYSQL_TYPE_NEWDECIMAL:
		return []byte{byte(c.Precision), byte(c.Scale)}
	}
	return nil
}

// Builder accumulates events of one binlog file
type Builder struct {
	buf       bytes.Buffer
	Timestamp uint32
	ServerID  uint32
	continues bool
}

func New() *Builder {
	b := &Builder{Timestamp: uint32(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix()), ServerID: 1}
	b.buf.WriteString(constants.BinlogMagic)
	b.formatDescription()
	return b
}

// Position is the offset the next event will be written at
func (b *Builder) Position() uint32 {
	return uint32(b.buf.Len())
}

func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

func (b *Builder) WriteFile(dir, name string) error {
	return os.WriteFile(filepath.Join(dir, name), b.buf.Bytes(), 0o644)
}

func (b *Builder) event(eventType replication.EventType, body []byte) {
	size := uint32(replication.EventHeaderSize + len(body))
	header := make([]byte, 0, replication.EventHeaderSize)
	header = binary.LittleEndian.AppendUint32(header, b.Timestamp)
	header = append(header, byte(eventType))
	header = binary.LittleEndian.AppendUint32(header, b.ServerID)
	header = binary.LittleEndian.AppendUint32(header, size)
	header = binary.LittleEndian.AppendUint32(header, b.Position()+size)
	header = binary.LittleEndian.AppendUint16(header, 0)
	b.buf.Write(header)
	b.buf.Write(body)
}

func (b *Builder) formatDescription() {
	body := binary.LittleEndian.AppendUint16(nil, 4)
	version := make([]byte, 50)
	copy(version, serverVersion)
	body = append(body, version...)
	body = binary.LittleEndian.AppendUint32(body, b.Timestamp)
	body = append(body, replication.EventHeaderSize)

	lengths := make([]byte, 40)
	lengths[replication.QUERY_EVENT-1] = 13
	lengths[replication.ROTATE_EVENT-1] = 8
	lengths[replication.FORMAT_DESCRIPTION_EVENT-1] = 84
	lengths[replication.TABLE_MAP_EVENT-1] = 8
	for _, t := range []replication.EventType{replication.WRITE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv1} {
		lengths[t-1] = 8
	}
	for _, t := range []replication.EventType{replication.WRITE_ROWS_EVENTv2, replication.UPDATE_ROWS_EVENTv2, replication.DELETE_ROWS_EVENTv2} {
		lengths[t-1] = 10
	}
	b.event(replication.FORMAT_DESCRIPTION_EVENT, append(body, lengths...))
}

func (b *Builder) Query(schema, query string) *Builder {
	body := make([]byte, 0, 13+len(schema)+1+len(query))
	body = binary.LittleEndian.AppendUint32(body, 1) // thread id
	body = binary.LittleEndian.AppendUint32(body, 0) // exec time
	body = append(body, byte(len(schema)))
	body = binary.LittleEndian.AppendUint16(body, 0) // error code
	body = binary.LittleEndian.AppendUint16(body, 0) // status vars
	body = append(body, schema...)
	body = append(body, 0)
	body = append(body, query...)
	b.event(replication.QUERY_EVENT, body)
	return b
}

func (b *Builder) Begin() *Builder {
	return b.Query("", "BEGIN")
}

func (b *Builder) Commit(xid uint64) *Builder {
	b.event(replication.XID_EVENT, binary.LittleEndian.AppendUint64(nil, xid))
	return b
}

func (b *Builder) TableMap(tableID uint64, schema, table string, columns []Column) *Builder {
	body := appendTableID(nil, tableID)
	body = binary.LittleEndian.AppendUint16(body, 1)
	body = append(body, byte(len(schema)))
	body = append(body, schema...)
	body = append(body, 0)
	body = append(body, byte(len(table)))
	body = append(body, table...)
	body = append(body, 0)
	body = append(body, byte(len(columns)))
	var meta []byte
	for _, column := range columns {
		body = append(body, column.Type)
		meta = append(meta, column.meta()...)
	}
	body = append(body, byte(len(meta)))
	body = append(body, meta...)
	body = append(body, fullBitmap(len(columns))...)
	b.event(replication.TABLE_MAP_EVENT, body)
	return b
}

func (b *Builder) Insert(tableID uint64, columns []Column, rows ...[]any) *Builder {
	b.rows(replication.WRITE_ROWS_EVENTv2, tableID, columns, rows)
	return b
}

// Update takes before and after images alternately
func (b *Builder) Update(tableID uint64, columns []Column, images ...[]any) *Builder {
	if len(images)%2 != 0 {
		panic("update needs before/after image pairs")
	}
	b.rows(replication.UPDATE_ROWS_EVENTv2, tableID, columns, images)
	return b
}

func (b *Builder) Delete(tableID uint64, columns []Column, rows ...[]any) *Builder {
	b.rows(replication.DELETE_ROWS_EVENTv2, tableID, columns, rows)
	return b
}

// Continues leaves the end-of-statement flag off the next rows event, as MySQL does when
// one statement's rows are split over several events
func (b *Builder) Continues() *Builder {
	b.continues = true
	return b
}

func (b *Builder) Rotate(next string) *Builder {
	body := binary.LittleEndian.AppendUint64(nil, uint64(len(constants.BinlogMagic)))
	b.event(replication.ROTATE_EVENT, append(body, next...))
	return b
}

func (b *Builder) Stop() *Builder {
	b.event(replication.STOP_EVENT, nil)
	return b
}

func (b *Builder) rows(eventType replication.EventType, tableID uint64, columns []Column, rows [][]any) {
	body := appendTableID(nil, tableID)
	flags := uint16(replication.RowsEventStmtEndFlag)
	if b.continues {
		flags = 0
	}
	b.continues = false
	body = binary.LittleEndian.AppendUint16(body, flags)
	body = binary.LittleEndian.AppendUint16(body, 2) // no extra data
	body = append(body, byte(len(columns)))
	body = append(body, fullBitmap(len(columns))...)
	if eventType == replication.UPDATE_ROWS_EVENTv2 {
		body = append(body, fullBitmap(len(columns))...)
	}
	for _, row := range rows {
		if len(row) != len(columns) {
			panic(fmt.Sprintf("row has %d values for %d columns", len(row), len(columns)))
		}
		nulls := make([]byte, (len(columns)+7)/8)
		var values []byte
		for i, value := range row {
			if value == nil {
				nulls[i/8] |= 1 << (i % 8)
				continue
			}
			values = append(values, encode(columns[i], value)...)
		}
		body = append(body, nulls...)
		body = append(body, values...)
	}
	b.event(eventType, body)
}

func appendTableID(buf []byte, tableID uint64) []byte {
	id := binary.LittleEndian.AppendUint64(nil, tableID)
	return append(buf, id[:6]...)
}

func fullBitmap(count int) []byte {
	bitmap := make([]byte, (count+7)/8)
	for i := 0; i < count; i++ {
		bitmap[i/8] |= 1 << (i % 8)
	}
	return bitmap
}

func toUint64(value any) uint64 {
	switch v := value.(type) {
	case int:
		return uint64(v)
	case int8:
		return uint64(v)
	case int16:
		return uint64(v)
	case int32:
		return uint64(v)
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	}
	panic(fmt.Sprintf("not an integer: %T", value))
}

func encode(column Column, value any) []byte {
	switch column.Type {
	case mysql.MYSQL_TYPE_TINY:
		return []byte{byte(toUint64(value))}
	case mysql.MYSQL_TYPE_SHORT:
		return binary.LittleEndian.AppendUint16(nil, uint16(toUint64(value)))
	case mysql.MYSQL_TYPE_INT24:
		v := toUint64(value)
		return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
	case mysql.MYSQL_TYPE_LONG:
		return binary.LittleEndian.AppendUint32(nil, uint32(toUint64(value)))
	case mysql.MYSQL_TYPE_LONGLONG:
		return binary.LittleEndian.AppendUint64(nil, toUint64(value))
	case mysql.MYSQL_TYPE_FLOAT:
		var f float32
		switch v := value.(type) {
		case float32:
			f = v
		case float64:
			f = float32(v)
		}
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(f))
	case mysql.MYSQL_TYPE_VARCHAR:
		data := textBytes(value)
		if column.Length < 256 {
			return append([]byte{byte(len(data))}, data...)
		}
		return append(binary.LittleEndian.AppendUint16(nil, uint16(len(data))), data...)
	case mysql.MYSQL_TYPE_BLOB:
		data := textBytes(value)
		size := binary.LittleEndian.AppendUint32(nil, uint32(len(data)))
		return append(size[:column.Length], data...)
	case mysql.MYSQL_TYPE_DATETIME2:
		t := value.(time.Time)
		ym := uint64(t.Year()*13 + int(t.Month()))
		packed := ym<<22 | uint64(t.Day())<<17 | uint64(t.Hour())<<12 | uint64(t.Minute())<<6 | uint64(t.Second())
		packed += 0x8000000000
		full := binary.BigEndian.AppendUint64(nil, packed)
		return full[3:]
	case mysql.MYSQL_TYPE_TIMESTAMP2:
		return binary.BigEndian.AppendUint32(nil, uint32(value.(time.Time).Unix()))
	case mysql.MYSQL_TYPE_DATE:
		t := value.(time.Time)
		v := uint32(t.Year())<<9 | uint32(t.Month())<<5 | uint32(t.Day())
		return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
	case mysql.MYSQL_TYPE_NEWDECIMAL:
		return encodeDecimal(value.(string), column.Precision, column.Scale)
	}
	panic(fmt.Sprintf("unsupported column type %d", column.Type))
}

func textBytes(value any) []byte {
	switch v := value.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	}
	panic(fmt.Sprintf("not text: %T", value))
}

var digitBytes = [10]int{0, 1, 1, 2, 2, 3, 3, 4, 4, 4}

// encodeDecimal writes MySQL's packed decimal: nine digits per four bytes, sign in the top bit
func encodeDecimal(text string, precision, scale int) []byte {
	negative := strings.HasPrefix(text, "-")
	text = strings.TrimPrefix(text, "-")
	intPart, fracPart, _ := strings.Cut(text, ".")

	intDigits := precision - scale
	intPart = strings.Repeat("0", intDigits-len(intPart)) + intPart
	fracPart += strings.Repeat("0", scale-len(fracPart))

	var out []byte
	appendGroup := func(digits string) {
		var v uint64
		for _, d := range digits {
			v = v*10 + uint64(d-'0')
		}
		size := digitBytes[len(digits)]
		full := binary.BigEndian.AppendUint64(nil, v)
		out = append(out, full[8-size:]...)
	}

	lead := intDigits % 9
	if lead > 0 {
		appendGroup(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 9 {
		appendGroup(intPart[i : i+9])
	}
	full := scale / 9 * 9
	for i := 0; i < full; i += 9 {
		appendGroup(fracPart[i : i+9])
	}
	if scale%9 > 0 {
		appendGroup(fracPart[full:])
	}

	if negative {
		for i := range out {
			out[i] = ^out[i]
		}
	}
	out[0] ^= 0x80
	return out
}
