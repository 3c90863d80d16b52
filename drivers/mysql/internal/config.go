package driver

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/drivers/base"
	"github.com/datazip-inc/binlogdir/pkg/binlog"
	"github.com/datazip-inc/binlogdir/pkg/schema"
	"github.com/datazip-inc/binlogdir/utils"
	"github.com/go-mysql-org/go-mysql/mysql"
	gomysql "github.com/go-sql-driver/mysql"
)

// Config is the reader configuration; Connection is only needed to capture snapshots
type Config struct {
	BinlogDir       string              `json:"binlog_dir" validate:"required"`
	Database        string              `json:"database" validate:"required"`
	SchemaStore     *schema.StoreConfig `json:"schema_store" validate:"required"`
	CacheCapacity   int                 `json:"schema_cache_capacity" validate:"gte=0"`
	CharsetFallback string              `json:"charset_fallback" validate:"required,oneof=raw utf8"`
	ExcludeTables   []string            `json:"exclude_tables,omitempty"`
	Filter          map[string]any      `json:"filter,omitempty"`
	Routes          map[string]string   `json:"routes,omitempty"`
	MaxEvents       int64               `json:"max_events" validate:"gte=0"`
	VerifyChecksum  bool                `json:"verify_checksum"`
	Connection      *Connection         `json:"connection,omitempty"`
}

// Connection reaches the server a snapshot is captured from
type Connection struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	TLSSkipVerify bool   `json:"tls_skip_verify"`
	RetryCount    int    `json:"backoff_retry_count"`
}

// URI generates the connection DSN for database
func (c *Connection) URI(database string) string {
	cfg := gomysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(utils.Ternary(c.Host == "", "localhost", c.Host), strconv.Itoa(c.Port))
	cfg.DBName = database
	cfg.Timeout = 10 * time.Second
	if c.TLSSkipVerify {
		cfg.TLS = &tls.Config{InsecureSkipVerify: true}
	}
	return cfg.FormatDSN()
}

func (c *Connection) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("empty host name")
	} else if strings.Contains(c.Host, "https") || strings.Contains(c.Host, "http") {
		return fmt.Errorf("host should not contain http or https: %s", c.Host)
	}

	if c.Port == 0 {
		c.Port = constants.DefaultMySQLPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port number: must be between 1 and 65535")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.RetryCount <= 0 {
		c.RetryCount = base.DefaultRetryCount
	}
	return nil
}

// Validate checks the configuration for any missing or invalid fields
func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}
	if err := c.SchemaStore.Validate(); err != nil {
		return fmt.Errorf("invalid schema_store: %s", err)
	}
	if c.Connection != nil {
		if err := c.Connection.Validate(); err != nil {
			return fmt.Errorf("invalid connection: %s", err)
		}
	}
	for _, table := range c.ExcludeTables {
		if strings.TrimSpace(table) == "" {
			return fmt.Errorf("exclude_tables contains an empty name")
		}
	}
	return nil
}

// ReadOptions turns the config into session options starting at from
func (c *Config) ReadOptions(from mysql.Position) *binlog.ReadOptions {
	return &binlog.ReadOptions{
		Dir:             c.BinlogDir,
		From:            from,
		MaxEvents:       c.MaxEvents,
		ExcludeTables:   append([]string(nil), c.ExcludeTables...),
		Filter:          c.Filter,
		CharsetFallback: c.CharsetFallback,
		VerifyChecksum:  c.VerifyChecksum,
	}
}
