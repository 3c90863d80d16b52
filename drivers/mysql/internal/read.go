package driver

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/pkg/binlog"
)

// Read runs one session from the state cursor (or the snapshot position on a fresh state)
// against the snapshot named by the state's schema token
func (m *MySQL) Read(ctx context.Context, override func(opts *binlog.ReadOptions), onChange binlog.OnChange) (cursor binlog.Cursor, err error) {
	token := m.State.SchemaToken
	if token == "" {
		return binlog.Cursor{}, fmt.Errorf("state has no schema token, capture a snapshot first")
	}
	snapshot, err := m.LoadSnapshot(ctx, token)
	if err != nil {
		return binlog.Cursor{}, fmt.Errorf("failed to load schema snapshot %s: %w", token, err)
	}
	if snapshot.Database != m.config.Database {
		return binlog.Cursor{}, fmt.Errorf("schema snapshot %s is of database %s, not %s", token, snapshot.Database, m.config.Database)
	}

	from := m.State.Cursor()
	if from.Name == "" {
		from = snapshot.CapturedAt
	}
	opts := m.config.ReadOptions(from)
	if override != nil {
		override(opts)
	}

	var script binlog.Script
	if len(m.config.Routes) > 0 {
		script = binlog.Router(m.config.Routes)
	}

	session, err := binlog.NewSession(opts, snapshot, script)
	if err != nil {
		return binlog.Cursor{}, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var yielded, scanned atomic.Int64
	var position atomic.Value
	position.Store(opts.From.String())
	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	logger.StatsLogger(statsCtx, func() (int64, int64, string) {
		return yielded.Load(), scanned.Load(), position.Load().(string)
	})

	for {
		if err := ctx.Err(); err != nil {
			return session.Cursor(), err
		}
		change, err := session.Next()
		scanned.Store(session.Scanned())
		if err == io.EOF {
			final := session.Cursor()
			logger.Infof("read of %s finished at %s with %d rows", m.config.Database, final.Position, final.Processed)
			return final, nil
		}
		if err != nil {
			return session.Cursor(), err
		}
		if err := onChange(change); err != nil {
			return session.Cursor(), fmt.Errorf("failed to handle change of `%s`: %w", change.Table, err)
		}
		yielded.Add(1)
		position.Store(change.Position.String())
	}
}

