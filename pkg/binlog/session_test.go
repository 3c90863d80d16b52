package binlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datazip-inc/binlogdir/pkg/binlog/binlogtest"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/datazip-inc/binlogdir/utils"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBinlogDecodesEveryChangeKind(t *testing.T) {
	f := writeFixture(t)

	changes, cursor, err := readAll(t, readOptions(f.dir), testSnapshot(), nil)
	require.NoError(t, err)
	require.Len(t, changes, 5)

	kinds := make([]types.ChangeType, len(changes))
	for i, change := range changes {
		kinds[i] = change.Kind
		assert.Equal(t, "shop", change.Database)
		assert.Equal(t, "users", change.Table)
		assert.Equal(t, "id", change.KeyColumn)
	}
	assert.Equal(t, []types.ChangeType{types.Insert, types.Insert, types.Update, types.Delete, types.Insert}, kinds)

	alice := changes[0]
	assert.Equal(t, int64(1), alice.Attributes["id"])
	assert.Equal(t, "alice", alice.Attributes["name"])
	assert.Equal(t, "8.6210000", alice.Attributes["balance"].(types.Decimal).String())
	assert.Equal(t, "2024-03-01 10:30:00", alice.Attributes["created_at"])
	assert.Equal(t, firstFile, alice.Position.Name)

	assert.Equal(t, "-12.5000000", changes[1].Attributes["balance"].(types.Decimal).String())

	update := changes[2]
	assert.Equal(t, "alice", update.Before["name"])
	assert.Equal(t, "alicia", update.Attributes["name"])

	deleted := changes[3]
	assert.Nil(t, deleted.Attributes)
	assert.Equal(t, "bob", deleted.Before["name"])
	assert.Equal(t, int64(2), deleted.Key)

	carol := changes[4]
	assert.Equal(t, secondFile, carol.Position.Name)
	assert.Contains(t, carol.Attributes, "balance")
	assert.Nil(t, carol.Attributes["balance"])

	assert.Equal(t, f.end, cursor.Position)
	assert.Equal(t, int64(5), cursor.Processed)
}

func TestReadBinlogIsDeterministic(t *testing.T) {
	f := writeFixture(t)

	first, firstCursor, err := readAll(t, readOptions(f.dir), testSnapshot(), nil)
	require.NoError(t, err)
	second, secondCursor, err := readAll(t, readOptions(f.dir), testSnapshot(), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstCursor.Position, secondCursor.Position)
	assert.Equal(t, firstCursor.Processed, secondCursor.Processed)
	assert.NotEqual(t, firstCursor.SessionID, secondCursor.SessionID)
}

func TestCutoffFinishesStatementAndResumes(t *testing.T) {
	f := writeFixture(t)

	full, _, err := readAll(t, readOptions(f.dir), testSnapshot(), nil)
	require.NoError(t, err)

	opts := readOptions(f.dir)
	opts.MaxEvents = 1
	head, cursor, err := readAll(t, opts, testSnapshot(), nil)
	require.NoError(t, err)
	// both rows of the first insert statement are yielded even though the limit is one
	require.Len(t, head, 2)
	assert.Equal(t, mysql.Position{Name: firstFile, Pos: f.secondTxMap}, cursor.Position)
	assert.Equal(t, int64(2), cursor.Processed)

	resume := readOptions(f.dir)
	resume.From = cursor.Position
	tail, _, err := readAll(t, resume, testSnapshot(), nil)
	require.NoError(t, err)

	assert.Equal(t, full, append(head, tail...))
}

func TestReadRange(t *testing.T) {
	f := writeFixture(t)

	tests := []struct {
		name  string
		from  mysql.Position
		to    mysql.Position
		rows  int
		until mysql.Position
	}{
		{
			name:  "empty range",
			from:  mysql.Position{Name: firstFile, Pos: f.firstCommit},
			to:    mysql.Position{Name: firstFile, Pos: f.firstCommit},
			rows:  0,
			until: mysql.Position{Name: firstFile, Pos: f.firstCommit},
		},
		{
			name:  "first transaction",
			from:  mysql.Position{Name: firstFile, Pos: 4},
			to:    mysql.Position{Name: firstFile, Pos: f.firstCommit},
			rows:  2,
			until: mysql.Position{Name: firstFile, Pos: f.firstCommit},
		},
		{
			name:  "across rotation",
			from:  mysql.Position{Name: firstFile, Pos: f.firstCommit},
			to:    f.end,
			rows:  3,
			until: f.end,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := readOptions(f.dir)
			opts.From = tc.from
			opts.To = &tc.to
			changes, cursor, err := readAll(t, opts, testSnapshot(), nil)
			require.NoError(t, err)
			assert.Len(t, changes, tc.rows)
			assert.Equal(t, tc.until, cursor.Position)
		})
	}
}

func TestMissingBinlogFile(t *testing.T) {
	f := writeFixture(t)

	opts := readOptions(f.dir)
	opts.From = mysql.Position{Name: "mysql-bin.000009", Pos: 4}
	_, _, err := readAll(t, opts, testSnapshot(), nil)
	assert.ErrorIs(t, err, ErrFileNotFound)

	opts = readOptions(f.dir)
	opts.To = &mysql.Position{Name: "mysql-bin.000009", Pos: 4}
	_, _, err = readAll(t, opts, testSnapshot(), nil)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestUnsignedColumns(t *testing.T) {
	dir := t.TempDir()
	columns := []binlogtest.Column{binlogtest.BigInt(), binlogtest.TinyInt(), binlogtest.SmallInt(), binlogtest.Int()}
	require.NoError(t, binlogtest.New().
		Begin().
		TableMap(7, "shop", "counters", columns).
		Insert(7, columns,
			[]any{uint64(18446744073709551615), 255, 65535, uint32(4294967295)},
			[]any{1, 2, 3, 4}).
		Commit(1).
		WriteFile(dir, firstFile))

	snapshot := &types.SchemaSnapshot{
		Database: "shop",
		Tables: map[string]*types.TableSchema{
			"counters": types.NewTableSchema("shop", "counters", []types.ColumnDef{
				{Name: "id", DataType: "bigint", OrdinalPosition: 1, PrimaryKey: true, Unsigned: true},
				{Name: "tiny", DataType: "tinyint", OrdinalPosition: 2, Unsigned: true},
				{Name: "small", DataType: "smallint", OrdinalPosition: 3, Unsigned: true},
				{Name: "hits", DataType: "int", OrdinalPosition: 4, Unsigned: true},
			}),
		},
	}

	changes, _, err := readAll(t, readOptions(dir), snapshot, nil)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, map[string]any{
		"id":    uint64(18446744073709551615),
		"tiny":  uint64(255),
		"small": uint64(65535),
		"hits":  uint64(4294967295),
	}, changes[0].Attributes)
	assert.Equal(t, map[string]any{
		"id":    uint64(1),
		"tiny":  uint64(2),
		"small": uint64(3),
		"hits":  uint64(4),
	}, changes[1].Attributes)
	assert.Equal(t, uint64(18446744073709551615), changes[0].Key)
}

func TestSignedColumnsStaySigned(t *testing.T) {
	dir := t.TempDir()
	columns := []binlogtest.Column{binlogtest.Int(), binlogtest.TinyInt(), binlogtest.MediumInt()}
	require.NoError(t, binlogtest.New().
		Begin().
		TableMap(8, "shop", "deltas", columns).
		Insert(8, columns, []any{-1, -128, -8388608}).
		Commit(1).
		WriteFile(dir, firstFile))

	// a declared int arriving as int24 is drift
	snapshot := &types.SchemaSnapshot{
		Database: "shop",
		Tables: map[string]*types.TableSchema{
			"deltas": types.NewTableSchema("shop", "deltas", []types.ColumnDef{
				{Name: "id", DataType: "int", OrdinalPosition: 1},
				{Name: "tiny", DataType: "tinyint", OrdinalPosition: 2},
				{Name: "medium", DataType: "int", OrdinalPosition: 3},
			}),
		},
	}
	_, _, err := readAll(t, readOptions(dir), snapshot, nil)
	require.ErrorIs(t, err, ErrSchemaDrift)
	assert.Contains(t, err.Error(), "instead saw a int24")

	columns = columns[:2]
	require.NoError(t, binlogtest.New().
		Begin().
		TableMap(8, "shop", "deltas", columns).
		Insert(8, columns, []any{-1, -128}).
		Commit(1).
		WriteFile(dir, firstFile))
	snapshot.Tables["deltas"].Columns = snapshot.Tables["deltas"].Columns[:2]

	changes, _, err := readAll(t, readOptions(dir), snapshot, nil)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, map[string]any{"id": int64(-1), "tiny": int64(-128)}, changes[0].Attributes)
	assert.Empty(t, changes[0].KeyColumn)
}

func TestSchemaDrift(t *testing.T) {
	f := writeFixture(t)

	tests := []struct {
		name    string
		mutate  func(s *types.SchemaSnapshot)
		kind    DriftKind
		message string
	}{
		{
			name:    "missing table",
			mutate:  func(s *types.SchemaSnapshot) { delete(s.Tables, "users") },
			kind:    MissingTable,
			message: "schema drift: could not find `users` in stored schema",
		},
		{
			name: "column count",
			mutate: func(s *types.SchemaSnapshot) {
				s.Tables["users"].Columns = s.Tables["users"].Columns[:3]
			},
			kind:    ColumnCountMismatch,
			message: "schema drift: expected 3 columns in `users` but got 4 columns",
		},
		{
			name: "column type",
			mutate: func(s *types.SchemaSnapshot) {
				s.Tables["users"].Columns[1].DataType = "int"
			},
			kind:    ColumnTypeMismatch,
			message: "schema drift: in `users`, expected column #2 (`name`) to be a int, instead saw a varchar",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snapshot := testSnapshot()
			tc.mutate(snapshot)

			changes, _, err := readAll(t, readOptions(f.dir), snapshot, nil)
			assert.Empty(t, changes)
			require.ErrorIs(t, err, ErrSchemaDrift)

			var drift *SchemaDriftError
			require.ErrorAs(t, err, &drift)
			assert.Equal(t, tc.kind, drift.Kind)
			assert.Equal(t, tc.message, drift.Error())
		})
	}
}

func TestUnsupportedDeclaredType(t *testing.T) {
	f := writeFixture(t)
	snapshot := testSnapshot()
	snapshot.Tables["users"].Columns[1].DataType = "json"

	_, _, err := readAll(t, readOptions(f.dir), snapshot, nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestExcludedTableNeedsNoSchema(t *testing.T) {
	f := writeFixture(t)
	snapshot := testSnapshot()
	delete(snapshot.Tables, "users")

	opts := readOptions(f.dir)
	opts.ExcludeTables = []string{"users"}
	changes, cursor, err := readAll(t, opts, snapshot, nil)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, f.end, cursor.Position)
}

func TestAttributeFilter(t *testing.T) {
	f := writeFixture(t)

	tests := []struct {
		name   string
		filter map[string]any
		kinds  []types.ChangeType
	}{
		{name: "text value matches delete before-image", filter: map[string]any{"name": "bob"}, kinds: []types.ChangeType{types.Insert, types.Delete}},
		{name: "numeric from json", filter: map[string]any{"id": float64(1)}, kinds: []types.ChangeType{types.Insert, types.Update}},
		{name: "decimal text", filter: map[string]any{"balance": "8.6210000"}, kinds: []types.ChangeType{types.Insert, types.Update}},
		{name: "missing column", filter: map[string]any{"email": "x"}, kinds: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := readOptions(f.dir)
			opts.Filter = tc.filter
			changes, cursor, err := readAll(t, opts, testSnapshot(), nil)
			require.NoError(t, err)

			var kinds []types.ChangeType
			for _, change := range changes {
				kinds = append(kinds, change.Kind)
			}
			assert.Equal(t, tc.kinds, kinds)
			assert.Equal(t, int64(len(tc.kinds)), cursor.Processed)
		})
	}
}

func TestScriptRunsBeforeFilter(t *testing.T) {
	f := writeFixture(t)

	dropCarol := ScriptFunc(func(change *types.RowChange) (Action, error) {
		if change.Kind == types.Delete {
			return Emit, nil
		}
		if change.Attributes["name"] == "carol" {
			return Suppress, nil
		}
		change.Attributes["tag"] = "seen"
		return Emit, nil
	})

	opts := readOptions(f.dir)
	opts.Filter = map[string]any{"tag": "seen"}
	changes, _, err := readAll(t, opts, testSnapshot(), Chain(dropCarol, Router(map[string]string{"users": "audit"})))
	require.NoError(t, err)

	// deletes have no after-image to tag, so only inserts and the update remain
	require.Len(t, changes, 3)
	for _, change := range changes {
		assert.Equal(t, "audit", change.Channel)
		assert.NotEqual(t, "carol", change.Attributes["name"])
	}
}

func TestTruncatedTailEndsSession(t *testing.T) {
	f := writeFixture(t)

	path := filepath.Join(f.dir, secondFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0o644))

	changes, cursor, err := readAll(t, readOptions(f.dir), testSnapshot(), nil)
	require.NoError(t, err)
	// the insert in the second file survives, only its commit is cut
	assert.Len(t, changes, 5)
	assert.Equal(t, secondFile, cursor.Position.Name)
	assert.Less(t, cursor.Position.Pos, f.end.Pos)
}

func TestStopEventMovesToNextFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, binlogtest.New().
		Begin().
		TableMap(usersID, "shop", "users", usersColumns).
		Insert(usersID, usersColumns, []any{1, "alice", "1.0000000", createdAt}).
		Commit(1).
		Stop().
		WriteFile(dir, firstFile))

	second := binlogtest.New().
		Begin().
		TableMap(usersID, "shop", "users", usersColumns).
		Insert(usersID, usersColumns, []any{2, "bob", "2.0000000", createdAt}).
		Commit(2)
	require.NoError(t, second.WriteFile(dir, secondFile))

	changes, cursor, err := readAll(t, readOptions(dir), testSnapshot(), nil)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Equal(t, mysql.Position{Name: secondFile, Pos: second.Position()}, cursor.Position)
}

func TestCutoffAfterExcludedInsert(t *testing.T) {
	dir := t.TempDir()
	sessionsColumns := []binlogtest.Column{binlogtest.Int()}

	builder := binlogtest.New()
	builder.Begin().
		TableMap(7, "shop", "sessions", sessionsColumns).
		Insert(7, sessionsColumns, []any{77}).
		Commit(1)
	builder.Begin().
		TableMap(usersID, "shop", "users", usersColumns).
		Insert(usersID, usersColumns, []any{1, "alice", "1.0000000", createdAt}).
		Commit(2)
	builder.Begin()
	boundary := builder.Position()
	builder.TableMap(usersID, "shop", "users", usersColumns).
		Insert(usersID, usersColumns, []any{2, "bob", "2.0000000", createdAt}).
		Commit(3)
	require.NoError(t, builder.WriteFile(dir, firstFile))

	opts := readOptions(dir)
	opts.MaxEvents = 1
	opts.ExcludeTables = []string{"sessions"}
	head, cursor, err := readAll(t, opts, testSnapshot(), nil)
	require.NoError(t, err)
	require.Len(t, head, 1)
	assert.Equal(t, int64(1), head[0].Attributes["id"])
	assert.Equal(t, mysql.Position{Name: firstFile, Pos: boundary}, cursor.Position)
	assert.Equal(t, int64(1), cursor.Processed)

	resume := readOptions(dir)
	resume.From = cursor.Position
	resume.ExcludeTables = []string{"sessions"}
	tail, _, err := readAll(t, resume, testSnapshot(), nil)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(2), tail[0].Attributes["id"])
}

func TestAdjacentRangesMatchWholeRange(t *testing.T) {
	f := writeFixture(t)
	whole := readOptions(f.dir)
	whole.To = &f.end
	expected, _, err := readAll(t, whole, testSnapshot(), nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		split mysql.Position
		until mysql.Position
	}{
		{name: "file start", split: mysql.Position{Name: firstFile, Pos: 4}},
		{name: "after commit", split: mysql.Position{Name: firstFile, Pos: f.firstCommit}},
		{name: "at table map", split: mysql.Position{Name: firstFile, Pos: f.secondTxMap}},
		{
			name:  "between table map and rows",
			split: mysql.Position{Name: firstFile, Pos: f.secondRows},
			until: mysql.Position{Name: firstFile, Pos: f.secondTxMap},
		},
		{name: "next file", split: mysql.Position{Name: secondFile, Pos: 4}},
		{name: "end", split: f.end},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			until := utils.Ternary(tc.until.Name == "", tc.split, tc.until)

			left := readOptions(f.dir)
			left.To = &tc.split
			head, cursor, err := readAll(t, left, testSnapshot(), nil)
			require.NoError(t, err)
			assert.Equal(t, until, cursor.Position)

			right := readOptions(f.dir)
			right.From = cursor.Position
			right.To = &f.end
			tail, _, err := readAll(t, right, testSnapshot(), nil)
			require.NoError(t, err)

			assert.Equal(t, expected, append(head, tail...))
		})
	}
}

func TestEndInsideSplitStatementFinishesIt(t *testing.T) {
	dir := t.TempDir()
	builder := binlogtest.New()
	builder.Begin().
		TableMap(usersID, "shop", "users", usersColumns).
		Continues().
		Insert(usersID, usersColumns, []any{1, "alice", "1.0000000", createdAt})
	middle := builder.Position()
	builder.Insert(usersID, usersColumns, []any{2, "bob", "2.0000000", createdAt})
	statementEnd := builder.Position()
	builder.Commit(1).
		Begin().
		TableMap(usersID, "shop", "users", usersColumns).
		Insert(usersID, usersColumns, []any{3, "carol", "3.0000000", createdAt}).
		Commit(2)
	require.NoError(t, builder.WriteFile(dir, firstFile))
	end := mysql.Position{Name: firstFile, Pos: builder.Position()}

	whole := readOptions(dir)
	expected, _, err := readAll(t, whole, testSnapshot(), nil)
	require.NoError(t, err)
	require.Len(t, expected, 3)

	left := readOptions(dir)
	left.To = &mysql.Position{Name: firstFile, Pos: middle}
	head, cursor, err := readAll(t, left, testSnapshot(), nil)
	require.NoError(t, err)
	// the statement's second rows event lies past the end position but is still read
	require.Len(t, head, 2)
	assert.Equal(t, mysql.Position{Name: firstFile, Pos: statementEnd}, cursor.Position)

	right := readOptions(dir)
	right.From = cursor.Position
	right.To = &end
	tail, _, err := readAll(t, right, testSnapshot(), nil)
	require.NoError(t, err)
	assert.Equal(t, expected, append(head, tail...))
}

func TestErrorEndsSession(t *testing.T) {
	dir := t.TempDir()
	logsColumns := []binlogtest.Column{binlogtest.Int()}
	require.NoError(t, binlogtest.New().
		Begin().
		TableMap(9, "shop", "logs", logsColumns).
		Insert(9, logsColumns, []any{1}).
		Commit(1).
		Begin().
		TableMap(usersID, "shop", "users", usersColumns).
		Insert(usersID, usersColumns, []any{1, "alice", "1.0000000", createdAt}).
		Commit(2).
		WriteFile(dir, firstFile))

	snapshot := testSnapshot()
	snapshot.Tables["logs"] = types.NewTableSchema("shop", "logs", []types.ColumnDef{
		{Name: "id", DataType: "bigint", OrdinalPosition: 1, PrimaryKey: true},
	})

	session, err := NewSession(readOptions(dir), snapshot, nil)
	require.NoError(t, err)
	defer session.Close()

	_, first := session.Next()
	require.ErrorIs(t, first, ErrSchemaDrift)
	for i := 0; i < 3; i++ {
		change, err := session.Next()
		assert.Nil(t, change)
		assert.Equal(t, first, err)
	}
	assert.Equal(t, int64(0), session.Cursor().Processed)
}
