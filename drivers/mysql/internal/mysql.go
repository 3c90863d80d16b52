package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/datazip-inc/binlogdir/drivers/base"
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/protocol"
	"github.com/datazip-inc/binlogdir/utils"
	"github.com/jmoiron/sqlx"

	// MySQL driver
	_ "github.com/go-sql-driver/mysql"
)

const pingTimeout = 10 * time.Second

// MySQL reads binlog files of one database and captures its schema snapshots
type MySQL struct {
	*base.Driver
	config *Config
	client *sqlx.DB
}

// GetConfigRef returns a reference to the configuration
func (m *MySQL) GetConfigRef() protocol.Config {
	m.config = &Config{}
	return m.config
}

func (m *MySQL) Type() string {
	return "MySQL"
}

// Setup opens the schema store and, if configured, the source connection
func (m *MySQL) Setup() error {
	if err := m.config.Validate(); err != nil {
		return fmt.Errorf("failed to validate config: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := m.SetupSchemaStore(ctx, m.config.SchemaStore, m.config.CacheCapacity); err != nil {
		return err
	}
	if m.config.Connection == nil || m.client != nil {
		return nil
	}

	client, err := sqlx.Open("mysql", m.config.Connection.URI(m.config.Database))
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := client.PingContext(ctx); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	m.client = client
	return nil
}

// Check verifies the store, the connection and the binlog directory
func (m *MySQL) Check() error {
	if err := m.Setup(); err != nil {
		return err
	}
	info, err := os.Stat(m.config.BinlogDir)
	if err != nil {
		return fmt.Errorf("failed to stat binlog dir: %s", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("binlog dir %s is not a directory", m.config.BinlogDir)
	}
	if start := m.State.Cursor(); start.Name != "" {
		if err := utils.CheckIfFilesExists(filepath.Join(m.config.BinlogDir, start.Name)); err != nil {
			return fmt.Errorf("start binlog file: %s", err)
		}
	}
	logger.Infof("%s source checked: binlog dir %s", m.Type(), m.config.BinlogDir)
	return nil
}

// Close releases the schema store and the source connection
func (m *MySQL) Close() error {
	closers := []func() error{m.Driver.Close}
	if m.client != nil {
		closers = append(closers, m.client.Close)
	}
	return utils.ErrExec(closers...)
}
