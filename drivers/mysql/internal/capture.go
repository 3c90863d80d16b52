package driver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/datazip-inc/binlogdir/drivers/base"
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/pkg/jdbc"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/jmoiron/sqlx"
)

var errPositionMoved = errors.New("binlog position moved while reading columns")

// Capture snapshots the configured database and stores it; the returned token names the snapshot
func (m *MySQL) Capture(ctx context.Context) (string, error) {
	snapshot, err := m.captureSnapshot(ctx)
	if err != nil {
		return "", err
	}
	return m.SaveSnapshot(ctx, snapshot)
}

// captureSnapshot reads the columns between two reads of the binlog position and retries
// until both reads agree, so the snapshot describes the schema at CapturedAt
func (m *MySQL) captureSnapshot(ctx context.Context) (*types.SchemaSnapshot, error) {
	if m.client == nil {
		return nil, fmt.Errorf("capturing a schema snapshot requires a connection")
	}

	var snapshot *types.SchemaSnapshot
	err := base.RetryOnBackoff(m.config.Connection.RetryCount, time.Second, func() error {
		return jdbc.WithIsolation(ctx, m.client, func(tx *sqlx.Tx) error {
			before, err := binlogPosition(ctx, tx)
			if err != nil {
				return err
			}

			var rows []columnRow
			if err := tx.SelectContext(ctx, &rows, jdbc.MySQLSchemaColumnsQuery(), m.config.Database); err != nil {
				return fmt.Errorf("failed to query columns: %s", err)
			}

			after, err := binlogPosition(ctx, tx)
			if err != nil {
				return err
			}
			if before.Compare(after) != 0 {
				return fmt.Errorf("%w: %s -> %s", errPositionMoved, before, after)
			}

			snapshot = &types.SchemaSnapshot{
				Database:   m.config.Database,
				Tables:     buildSnapshot(m.config.Database, rows),
				CapturedAt: after,
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture schema of %s: %s", m.config.Database, err)
	}

	logger.Infof("captured %d tables of %s at %s", len(snapshot.Tables), snapshot.Database, snapshot.CapturedAt)
	return snapshot, nil
}

// binlogPosition reads the current binlog coordinate; servers from 8.4 on only answer SHOW BINARY LOG STATUS
func binlogPosition(ctx context.Context, tx *sqlx.Tx) (mysql.Position, error) {
	status := map[string]any{}
	err := tx.QueryRowxContext(ctx, jdbc.MySQLMasterStatusQuery()).MapScan(status)
	if err != nil {
		logger.Debugf("%s failed, trying binary log status: %s", jdbc.MySQLMasterStatusQuery(), err)
		status = map[string]any{}
		err = tx.QueryRowxContext(ctx, jdbc.MySQLBinaryLogStatusQuery()).MapScan(status)
	}
	if err != nil {
		return mysql.Position{}, fmt.Errorf("failed to get binlog position, is binary logging enabled: %s", err)
	}
	return parseStatus(status)
}

func parseStatus(status map[string]any) (mysql.Position, error) {
	file, pos := statusText(status["File"]), statusText(status["Position"])
	if file == "" {
		return mysql.Position{}, fmt.Errorf("no binlog position available")
	}
	offset, err := strconv.ParseUint(pos, 10, 32)
	if err != nil {
		return mysql.Position{}, fmt.Errorf("invalid binlog offset %q: %s", pos, err)
	}
	return mysql.Position{Name: file, Pos: uint32(offset)}, nil
}

func statusText(value any) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
