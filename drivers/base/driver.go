package base

import (
	"context"
	"fmt"

	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/pkg/schema"
	"github.com/datazip-inc/binlogdir/types"
)

const (
	DefaultRetryCount = 3
)

// Driver carries what every source shares: the resume state and the schema snapshot cache
type Driver struct {
	State *types.State
	Cache *schema.Cache
	store schema.Store
}

func NewBase() *Driver {
	return &Driver{State: types.NewState()}
}

func (d *Driver) SetupState(state *types.State) {
	d.State = state
}

// SetupSchemaStore opens the durable store once and puts a cache of capacity snapshots in front of it
func (d *Driver) SetupSchemaStore(ctx context.Context, config *schema.StoreConfig, capacity int) error {
	if d.store != nil {
		return nil
	}
	store, err := schema.OpenStore(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to open %s schema store: %s", config.Type, err)
	}
	d.store = store
	d.Cache = schema.NewCache(capacity, store)
	return nil
}

// SaveSnapshot stores snapshot under its token and moves the state to its capture position
func (d *Driver) SaveSnapshot(ctx context.Context, snapshot *types.SchemaSnapshot) (string, error) {
	if d.Cache == nil {
		return "", fmt.Errorf("schema store is not set up")
	}
	token := snapshot.Token()
	if err := d.Cache.Put(ctx, token, snapshot); err != nil {
		return "", err
	}
	d.State.Reset(token, snapshot.CapturedAt)
	logger.Infof("saved schema snapshot %s with %d tables", token, len(snapshot.Tables))
	return token, nil
}

func (d *Driver) LoadSnapshot(ctx context.Context, token string) (*types.SchemaSnapshot, error) {
	if d.Cache == nil {
		return nil, fmt.Errorf("schema store is not set up")
	}
	return d.Cache.Get(ctx, token)
}

func (d *Driver) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}
