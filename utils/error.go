package utils

import (
	"context"
	"io"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// ErrExec runs functions concurrently and returns the first error
func ErrExec(functions ...func() error) error {
	group, _ := errgroup.WithContext(context.Background())
	for _, one := range functions {
		group.Go(one)
	}

	return group.Wait()
}

// ErrExecSequential runs every function even if a previous one failed and collects all errors
func ErrExecSequential(functions ...func() error) error {
	var multErr error
	for _, one := range functions {
		if err := one(); err != nil {
			multErr = multierror.Append(multErr, err)
		}
	}

	return multErr
}

// CloseAll closes every non-nil closer, collecting errors
func CloseAll(closers ...io.Closer) error {
	functions := make([]func() error, 0, len(closers))
	for _, closer := range closers {
		if closer == nil {
			continue
		}
		functions = append(functions, closer.Close)
	}

	return ErrExecSequential(functions...)
}
