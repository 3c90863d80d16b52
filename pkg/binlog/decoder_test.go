package binlog

import (
	"testing"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/pkg/binlog/binlogtest"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notesSnapshot(charsetName string) *types.SchemaSnapshot {
	return &types.SchemaSnapshot{
		Database: "shop",
		Tables: map[string]*types.TableSchema{
			"notes": types.NewTableSchema("shop", "notes", []types.ColumnDef{
				{Name: "id", DataType: "bigint", OrdinalPosition: 1, PrimaryKey: true},
				{Name: "body", DataType: "text", OrdinalPosition: 2, CharacterSet: charsetName},
				{Name: "score", DataType: "float", OrdinalPosition: 3},
				{Name: "day", DataType: "date", OrdinalPosition: 4},
				{Name: "seen_at", DataType: "timestamp", OrdinalPosition: 5},
			}),
		},
	}
}

func TestTextCharsets(t *testing.T) {
	dir := t.TempDir()
	columns := []binlogtest.Column{binlogtest.BigInt(), binlogtest.Text(), binlogtest.Float(), binlogtest.Date(), binlogtest.Timestamp()}
	require.NoError(t, binlogtest.New().
		Begin().
		TableMap(3, "shop", "notes", columns).
		Insert(3, columns, []any{1, []byte("FooBar\xe4"), float32(1.33), createdAt, createdAt}).
		Commit(1).
		WriteFile(dir, firstFile))

	tests := []struct {
		name     string
		charset  string
		fallback string
		body     any
	}{
		{name: "latin1 decodes to utf8", charset: "latin1", fallback: constants.CharsetFallbackRaw, body: "FooBarä"},
		{name: "binary keeps bytes", charset: "binary", fallback: constants.CharsetFallbackRaw, body: []byte("FooBar\xe4")},
		{name: "unknown charset raw", charset: "dec8", fallback: constants.CharsetFallbackRaw, body: []byte("FooBar\xe4")},
		{name: "unknown charset utf8", charset: "dec8", fallback: constants.CharsetFallbackUTF8, body: "FooBar\uFFFD"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := readOptions(dir)
			opts.CharsetFallback = tc.fallback
			changes, _, err := readAll(t, opts, notesSnapshot(tc.charset), nil)
			require.NoError(t, err)
			require.Len(t, changes, 1)

			attrs := changes[0].Attributes
			assert.Equal(t, tc.body, attrs["body"])
			assert.Equal(t, int64(1), attrs["id"])
			assert.Equal(t, float32(1.33), attrs["score"])
			assert.Equal(t, "2024-03-01", attrs["day"])
			assert.Equal(t, "2024-03-01 10:30:00", attrs["seen_at"])
			assert.Equal(t, []types.ColumnRef{
				{Name: "id"}, {Name: "body", Charset: tc.charset}, {Name: "score"}, {Name: "day"}, {Name: "seen_at"},
			}, changes[0].Columns)
		})
	}
}

func TestEncodedTextKeepsBytesThatDoNotRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		charset string
		raw     []byte
		body    any
	}{
		{name: "latin1 control bytes", charset: "latin1", raw: []byte("A\x81\x8d\x8f\x90\x9d"), body: "A\u0081\u008d\u008f\u0090\u009d"},
		{name: "gbk", charset: "gbk", raw: []byte("\xc4\xe3"), body: "你"},
		{name: "invalid gbk", charset: "gbk", raw: []byte("A\xff"), body: []byte("A\xff")},
		{name: "truncated sjis", charset: "sjis", raw: []byte("\x82"), body: []byte("\x82")},
	}

	columns := []binlogtest.Column{binlogtest.BigInt(), binlogtest.Text(), binlogtest.Float(), binlogtest.Date(), binlogtest.Timestamp()}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, binlogtest.New().
				Begin().
				TableMap(3, "shop", "notes", columns).
				Insert(3, columns, []any{1, tc.raw, float32(1), createdAt, createdAt}).
				Commit(1).
				WriteFile(dir, firstFile))

			changes, _, err := readAll(t, readOptions(dir), notesSnapshot(tc.charset), nil)
			require.NoError(t, err)
			require.Len(t, changes, 1)
			assert.Equal(t, tc.body, changes[0].Attributes["body"])
		})
	}
}

func TestIntegerValueReinterpretsUnsigned(t *testing.T) {
	tests := []struct {
		name     string
		column   MappedColumn
		raw      any
		expected any
	}{
		{name: "signed tiny", column: MappedColumn{Declared: types.TinyInt, Wire: WireTiny}, raw: int8(-1), expected: int64(-1)},
		{name: "unsigned tiny", column: MappedColumn{Declared: types.TinyInt, Wire: WireTiny, Unsigned: true}, raw: int8(-1), expected: uint64(255)},
		{name: "unsigned short", column: MappedColumn{Declared: types.SmallInt, Wire: WireShort, Unsigned: true}, raw: int16(-2), expected: uint64(65534)},
		{name: "unsigned int24", column: MappedColumn{Declared: types.Int, Wire: WireInt24, Unsigned: true}, raw: int32(-1), expected: uint64(16777215)},
		{name: "unsigned long", column: MappedColumn{Declared: types.Int, Wire: WireLong, Unsigned: true}, raw: int32(-1), expected: uint64(4294967295)},
		{name: "unsigned longlong", column: MappedColumn{Declared: types.BigInt, Wire: WireLongLong, Unsigned: true}, raw: int64(-1), expected: uint64(18446744073709551615)},
		{name: "already unsigned", column: MappedColumn{Declared: types.BigInt, Wire: WireLongLong, Unsigned: true}, raw: uint64(7), expected: uint64(7)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			value, err := integerValue(tc.column, tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, value)
		})
	}

	_, err := integerValue(MappedColumn{Declared: types.Int, Wire: WireLong}, "1")
	assert.Error(t, err)
}

func TestWireTypeString(t *testing.T) {
	assert.Equal(t, "newdecimal", WireNewDecimal.String())
	assert.Equal(t, "datetime2", WireDateTime2.String())
	assert.Equal(t, "unknown(0xe0)", WireType(0xe0).String())
}
