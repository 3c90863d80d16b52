// Package schema keeps captured schema snapshots: a bounded in-memory cache in front of a durable store.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/datazip-inc/binlogdir/types"
	"github.com/datazip-inc/binlogdir/utils"
)

var ErrSnapshotNotFound = errors.New("schema snapshot not found")

// Store persists snapshots by token. Load returns ErrSnapshotNotFound for unknown tokens.
type Store interface {
	Load(ctx context.Context, token string) (*types.SchemaSnapshot, error)
	Save(ctx context.Context, token string, snapshot *types.SchemaSnapshot) error
	Close() error
}

const (
	FileStoreType  = "file"
	SQLStoreType   = "sql"
	RedisStoreType = "redis"
)

// StoreConfig selects and configures one durable store
type StoreConfig struct {
	Type string `json:"type" validate:"required,oneof=file sql redis"`

	// file
	Path string `json:"path,omitempty"`

	// sql
	Driver string `json:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty"`
	Table  string `json:"table,omitempty"`

	// redis
	Address   string `json:"address,omitempty"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

func (c *StoreConfig) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}
	switch c.Type {
	case FileStoreType:
		if c.Path == "" {
			return fmt.Errorf("file schema store requires a path")
		}
	case SQLStoreType:
		if c.DSN == "" {
			return fmt.Errorf("sql schema store requires a dsn")
		}
		if !utils.ExistInArray([]string{"mysql", "sqlite3"}, c.Driver) {
			return fmt.Errorf("sql schema store driver must be mysql or sqlite3, got %q", c.Driver)
		}
	case RedisStoreType:
		if c.Address == "" {
			return fmt.Errorf("redis schema store requires an address")
		}
	}
	return nil
}

// OpenStore builds the store described by config
func OpenStore(ctx context.Context, config *StoreConfig) (Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch config.Type {
	case FileStoreType:
		store, err = NewFileStore(config.Path)
	case SQLStoreType:
		store, err = NewSQLStore(ctx, config.Driver, config.DSN, config.Table)
	default:
		store, err = NewRedisStore(ctx, config.Address, config.Password, config.DB, config.KeyPrefix)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func checkToken(token string) error {
	if _, _, err := types.ParseSchemaToken(token); err != nil {
		return err
	}
	if strings.ContainsAny(token, `/\`) {
		return fmt.Errorf("invalid schema token: %q", token)
	}
	return nil
}
