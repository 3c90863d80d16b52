package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each snapshot as a JSON string under <prefix><token>
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(ctx context.Context, address, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %s", address, err)
	}
	return newRedisStore(client, prefix), nil
}

func newRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = constants.DefaultSchemaPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) Load(ctx context.Context, token string) (*types.SchemaSnapshot, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, token)
		}
		return nil, fmt.Errorf("failed to get schema snapshot %s: %s", token, err)
	}

	snapshot := &types.SchemaSnapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema snapshot %s: %s", token, err)
	}
	return snapshot, nil
}

// Save stores without expiry; snapshots stay valid as long as their binlogs exist
func (s *RedisStore) Save(ctx context.Context, token string, snapshot *types.SchemaSnapshot) error {
	if err := checkToken(token); err != nil {
		return err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal schema snapshot %s: %s", token, err)
	}
	if err := s.client.Set(ctx, s.key(token), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set schema snapshot %s: %s", token, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
