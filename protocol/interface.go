package protocol

import (
	"context"

	"github.com/datazip-inc/binlogdir/pkg/binlog"
	"github.com/datazip-inc/binlogdir/types"
)

type Config interface {
	Validate() error
}

type Connector interface {
	// Setting up config reference in driver i.e. must be pointer
	GetConfigRef() Config
	// Check validates the config and reaches every configured dependency
	//
	// Note: Check shouldn't be called before Setup as they're composed at Connector level
	Check() error
	Type() string
}

type Driver interface {
	Connector
	// Sets up the schema store and, when configured, the source connection; doesn't perform any Checks
	Setup() error
	SetupState(state *types.State)
	// Capture stores a schema snapshot of the configured database and returns its token
	Capture(ctx context.Context) (string, error)
	// Read runs one session from the state cursor; override adjusts the options built from config
	Read(ctx context.Context, override func(opts *binlog.ReadOptions), onChange binlog.OnChange) (binlog.Cursor, error)
	Close() error
}
