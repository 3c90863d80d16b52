package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/goccy/go-json"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// the same DDL is accepted by both mysql and sqlite
const createSnapshotTable = `CREATE TABLE IF NOT EXISTS %s (
	token VARCHAR(255) NOT NULL PRIMARY KEY,
	database_name VARCHAR(64) NOT NULL,
	binlog_file VARCHAR(255) NOT NULL,
	binlog_pos BIGINT NOT NULL,
	snapshot LONGTEXT NOT NULL,
	saved_at TIMESTAMP NOT NULL
)`

type snapshotRow struct {
	Token    string    `db:"token"`
	Database string    `db:"database_name"`
	File     string    `db:"binlog_file"`
	Pos      int64     `db:"binlog_pos"`
	Snapshot string    `db:"snapshot"`
	SavedAt  time.Time `db:"saved_at"`
}

// SQLStore keeps snapshots in a table of a mysql or sqlite database
type SQLStore struct {
	db    *sqlx.DB
	table string
}

func NewSQLStore(ctx context.Context, driver, dsn, table string) (*SQLStore, error) {
	if table == "" {
		table = constants.DefaultSchemaTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid schema table name %q", table)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect schema store: %s", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(createSnapshotTable, table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema table %s: %s", table, err)
	}
	logger.Debugf("using %s schema store table %s", driver, table)

	return &SQLStore{db: db, table: table}, nil
}

func (s *SQLStore) Load(ctx context.Context, token string) (*types.SchemaSnapshot, error) {
	var row snapshotRow
	query := fmt.Sprintf("SELECT token, database_name, binlog_file, binlog_pos, snapshot FROM %s WHERE token = ?", s.table)
	if err := s.db.GetContext(ctx, &row, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, token)
		}
		return nil, fmt.Errorf("failed to load schema snapshot %s: %s", token, err)
	}

	snapshot := &types.SchemaSnapshot{}
	if err := json.Unmarshal([]byte(row.Snapshot), snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema snapshot %s: %s", token, err)
	}
	return snapshot, nil
}

func (s *SQLStore) Save(ctx context.Context, token string, snapshot *types.SchemaSnapshot) error {
	if err := checkToken(token); err != nil {
		return err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal schema snapshot %s: %s", token, err)
	}

	row := snapshotRow{
		Token:    token,
		Database: snapshot.Database,
		File:     snapshot.CapturedAt.Name,
		Pos:      int64(snapshot.CapturedAt.Pos),
		Snapshot: string(data),
		SavedAt:  time.Now().UTC(),
	}
	query := fmt.Sprintf(`REPLACE INTO %s (token, database_name, binlog_file, binlog_pos, snapshot, saved_at)
		VALUES (:token, :database_name, :binlog_file, :binlog_pos, :snapshot, :saved_at)`, s.table)
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save schema snapshot %s: %s", token, err)
	}
	return nil
}

// Tokens lists stored tokens, oldest capture first
func (s *SQLStore) Tokens(ctx context.Context) ([]string, error) {
	var tokens []string
	query := fmt.Sprintf("SELECT token FROM %s ORDER BY saved_at, token", s.table)
	if err := s.db.SelectContext(ctx, &tokens, query); err != nil {
		return nil, fmt.Errorf("failed to list schema snapshots: %s", err)
	}
	return tokens, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
