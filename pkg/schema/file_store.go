package schema

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/datazip-inc/binlogdir/types"
	"github.com/datazip-inc/binlogdir/utils"
)

// FileStore keeps one JSON file per token under a directory
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create schema store directory %s: %s", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(token string) string {
	return filepath.Join(s.dir, token+".json")
}

func (s *FileStore) Load(_ context.Context, token string) (*types.SchemaSnapshot, error) {
	if err := checkToken(token); err != nil {
		return nil, err
	}
	path := s.path(token)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, token)
	}

	snapshot := &types.SchemaSnapshot{}
	if err := utils.UnmarshalFile(path, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *FileStore) Save(_ context.Context, token string, snapshot *types.SchemaSnapshot) error {
	if err := checkToken(token); err != nil {
		return err
	}
	return utils.WriteFileAtomic(s.path(token), snapshot)
}

func (s *FileStore) Close() error {
	return nil
}
