package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownWorkflow is returned for workflow names other than add-update and configure.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrInvalidRequest wraps request-file problems found before any work starts.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrManifestAnchor is returned when a manifest has neither an include nor the fallback changeSet.
	ErrManifestAnchor = errors.New("manifest has no include or anchor changeSet")
)

// StoreError is a failed store call. It aborts the run.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// FileError is a failed output write. It carries the path and version stamp
// being written and aborts the run; files written earlier in the run remain.
type FileError struct {
	Path    string
	Version string
	Err     error
}

func (e *FileError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("write %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("write %s (version %s): %v", e.Path, e.Version, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
