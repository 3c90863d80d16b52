package sqlgen

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usersColumns = []types.ColumnRef{{Name: "id"}, {Name: "name", Charset: "utf8mb4"}, {Name: "balance"}, {Name: "created_at"}}
	notesColumns = []types.ColumnRef{{Name: "id"}, {Name: "body", Charset: "latin1"}, {Name: "payload", Charset: "binary"}}
)

func at(pos uint32) mysql.Position {
	return mysql.Position{Name: "mysql-bin.000001", Pos: pos}
}

func balance(value string) types.Decimal {
	return types.NewDecimal(decimal.RequireFromString(value), 7)
}

func sampleChanges() []*types.RowChange {
	return []*types.RowChange{
		{Kind: types.Insert, Table: "users", Columns: usersColumns, Position: at(400), KeyColumn: "id", Key: int64(1),
			Attributes: map[string]any{"id": int64(1), "name": "alice", "balance": balance("8.621"), "created_at": "2024-03-01 10:30:00"}},
		{Kind: types.Insert, Table: "users", Columns: usersColumns, Position: at(400), KeyColumn: "id", Key: int64(2),
			Attributes: map[string]any{"id": int64(2), "name": "o'brien\n", "balance": balance("-12.5"), "created_at": nil}},
		{Kind: types.Update, Table: "users", Columns: usersColumns, Position: at(700), KeyColumn: "id", Key: int64(1),
			Before:     map[string]any{"id": int64(1), "name": "alice", "balance": balance("8.621"), "created_at": "2024-03-01 10:30:00"},
			Attributes: map[string]any{"id": int64(1), "name": "alicia", "balance": balance("8.621"), "created_at": "2024-03-01 10:30:00"}},
		{Kind: types.Delete, Table: "users", Columns: usersColumns, Position: at(900), KeyColumn: "id", Key: int64(2),
			Before: map[string]any{"id": int64(2), "name": "o'brien\n", "balance": balance("-12.5"), "created_at": nil}},
		{Kind: types.Delete, Table: "users", Columns: usersColumns, Position: at(900), KeyColumn: "id", Key: int64(3),
			Before: map[string]any{"id": int64(3), "name": "carol", "balance": nil, "created_at": nil}},
		{Kind: types.Insert, Table: "notes", Columns: notesColumns, Position: at(1200), KeyColumn: "id", Key: uint64(7),
			Attributes: map[string]any{"id": uint64(7), "body": "FooBarä", "payload": []byte{0x00, 0xff}}},
	}
}

func TestWriterGolden(t *testing.T) {
	var out bytes.Buffer
	writer := NewWriter(func(string) (io.Writer, error) { return &out, nil })
	for _, change := range sampleChanges() {
		require.NoError(t, writer.Write(change))
	}
	require.NoError(t, writer.Flush())
	assert.Equal(t, int64(4), writer.Statements())

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "default_channel", out.Bytes())
}

func TestWriterSplitsChannels(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "replay.sql")
	outputs := NewOutputs(base, os.Stdout)
	writer := NewWriter(outputs.Open)

	for _, change := range sampleChanges() {
		if change.Table == "notes" {
			change.Channel = "archive"
		}
		require.NoError(t, writer.Write(change))
	}
	require.NoError(t, writer.Flush())
	require.NoError(t, outputs.Close())

	users, err := os.ReadFile(base)
	require.NoError(t, err)
	notes, err := os.ReadFile(base + ".archive")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "users_channel", users)
	g.Assert(t, "archive_channel", notes)
}

func TestOutputsDefaultToStdout(t *testing.T) {
	var stdout bytes.Buffer
	outputs := NewOutputs("", &stdout)
	out, err := outputs.Open(constants.DefaultChannel)
	require.NoError(t, err)
	assert.Same(t, &stdout, out)
	assert.NoError(t, outputs.Close())
}
