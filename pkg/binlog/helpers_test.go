package binlog

import (
	"testing"
	"time"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/pkg/binlog/binlogtest"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/stretchr/testify/require"
)

const (
	firstFile  = "mysql-bin.000001"
	secondFile = "mysql-bin.000002"
	usersID    = 100
	otherID    = 101
)

var (
	createdAt    = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	usersColumns = []binlogtest.Column{binlogtest.Int(), binlogtest.VarChar(64), binlogtest.Decimal(10, 7), binlogtest.DateTime()}
)

// fixture is a two file binlog: inserts, an update, a foreign database insert and a delete
// in the first file, one more insert after rotation in the second.
type fixture struct {
	dir         string
	secondTxMap uint32
	// between the second transaction's table map and its rows event
	secondRows uint32
	firstCommit uint32
	end         mysql.Position
}

func writeFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{dir: t.TempDir()}

	first := binlogtest.New()
	first.Begin().
		TableMap(usersID, "shop", "users", usersColumns).
		Insert(usersID, usersColumns,
			[]any{1, "alice", "8.6210000", createdAt},
			[]any{2, "bob", "-12.5000000", createdAt}).
		Commit(1)
	f.firstCommit = first.Position()

	first.Begin()
	f.secondTxMap = first.Position()
	first.TableMap(usersID, "shop", "users", usersColumns)
	f.secondRows = first.Position()
	first.Update(usersID, usersColumns,
		[]any{1, "alice", "8.6210000", createdAt},
		[]any{1, "alicia", "8.6210000", createdAt}).
		Commit(2)

	first.Begin().
		TableMap(otherID, "other", "users", usersColumns).
		Insert(otherID, usersColumns, []any{9, "mallory", "1.0000000", createdAt}).
		Commit(3)

	first.Begin().
		TableMap(usersID, "shop", "users", usersColumns).
		Delete(usersID, usersColumns, []any{2, "bob", "-12.5000000", createdAt}).
		Commit(4).
		Rotate(secondFile)
	require.NoError(t, first.WriteFile(f.dir, firstFile))

	second := binlogtest.New()
	second.Begin().
		TableMap(usersID, "shop", "users", usersColumns).
		Insert(usersID, usersColumns, []any{3, "carol", nil, createdAt}).
		Commit(5)
	require.NoError(t, second.WriteFile(f.dir, secondFile))
	f.end = mysql.Position{Name: secondFile, Pos: second.Position()}

	return f
}

func testSnapshot() *types.SchemaSnapshot {
	return &types.SchemaSnapshot{
		Database: "shop",
		Tables: map[string]*types.TableSchema{
			"users": types.NewTableSchema("shop", "users", []types.ColumnDef{
				{Name: "id", DataType: "int", OrdinalPosition: 1, PrimaryKey: true},
				{Name: "name", DataType: "varchar", OrdinalPosition: 2, CharacterSet: "utf8mb4"},
				{Name: "balance", DataType: "decimal", OrdinalPosition: 3, Nullable: true},
				{Name: "created_at", DataType: "datetime", OrdinalPosition: 4},
			}),
		},
		CapturedAt: mysql.Position{Name: firstFile, Pos: 4},
	}
}

func readOptions(dir string) *ReadOptions {
	return &ReadOptions{
		Dir:             dir,
		From:            mysql.Position{Name: firstFile, Pos: 4},
		CharsetFallback: constants.CharsetFallbackRaw,
	}
}

func readAll(t *testing.T, opts *ReadOptions, snapshot *types.SchemaSnapshot, script Script) ([]*types.RowChange, Cursor, error) {
	t.Helper()
	var changes []*types.RowChange
	cursor, err := ReadBinlog(opts, snapshot, script, func(change *types.RowChange) error {
		changes = append(changes, change)
		return nil
	})
	return changes, cursor, err
}
